package metadata

// WorkflowStatus is the Maker-Verifier-Authorizer approval state of an asset.
type WorkflowStatus string

const (
	WorkflowDraft                WorkflowStatus = "draft"
	WorkflowPendingVerification  WorkflowStatus = "pending_verification"
	WorkflowPendingAuthorization WorkflowStatus = "pending_authorization"
	WorkflowApproved             WorkflowStatus = "approved"
	WorkflowRejected             WorkflowStatus = "rejected"
)

const (
	AssetSubmit    = "submit_for_verification"
	AssetVerify    = "verify"
	AssetAuthorize = "authorize"
	AssetReject    = "reject"
)

// Rejected assets stay rejected; resubmission happens outside this workflow.
var AssetWorkflow = NewStateMachine("asset",
	Transition[WorkflowStatus]{Name: AssetSubmit, From: []WorkflowStatus{WorkflowDraft}, To: WorkflowPendingVerification},
	Transition[WorkflowStatus]{Name: AssetVerify, From: []WorkflowStatus{WorkflowPendingVerification}, To: WorkflowPendingAuthorization},
	Transition[WorkflowStatus]{Name: AssetAuthorize, From: []WorkflowStatus{WorkflowPendingAuthorization}, To: WorkflowApproved},
	Transition[WorkflowStatus]{Name: AssetReject, From: []WorkflowStatus{WorkflowPendingVerification, WorkflowPendingAuthorization}, To: WorkflowRejected},
)
