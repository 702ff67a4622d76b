package roles

// Role is the organisational role of a user.
type Role string

const (
	SystemAdmin        Role = "system_admin"
	FinanceDirector    Role = "finance_director"
	AssetDirector      Role = "asset_director"
	ProjectManager     Role = "project_manager"
	ProcurementOfficer Role = "procurement_officer"
	SiteEngineer       Role = "site_engineer"
	Warehouseman       Role = "warehouseman"
	Viewer             Role = "viewer"
)

// Permission is a single workflow action guarded by role.
type Permission string

const (
	CreateAsset        Permission = "asset.create"
	SubmitAsset        Permission = "asset.submit"
	VerifyAsset        Permission = "asset.verify"
	AuthorizeAsset     Permission = "asset.authorize"
	DeleteAsset        Permission = "asset.delete"
	AdjustQuantity     Permission = "asset.adjust_quantity"
	GenerateAssets     Permission = "asset.generate"
	CreateProcurement  Permission = "procurement.create"
	ApproveProcurement Permission = "procurement.approve"
	ManageDelivery     Permission = "procurement.delivery"
	ReceiveProcurement Permission = "procurement.receive"
	ResolveDiscrepancy Permission = "procurement.resolve"
	InitiateTransfer   Permission = "transfer.initiate"
	VerifyTransfer     Permission = "transfer.verify"
	ApproveTransfer    Permission = "transfer.approve"
	DispatchTransfer   Permission = "transfer.dispatch"
	ReceiveTransfer    Permission = "transfer.receive"
	CancelTransfer     Permission = "transfer.cancel"
	ManageCategories   Permission = "category.manage"
)

var permissions = map[Role][]Permission{
	FinanceDirector: {
		CreateAsset, SubmitAsset, VerifyAsset, AuthorizeAsset, DeleteAsset, AdjustQuantity, GenerateAssets,
		CreateProcurement, ApproveProcurement, ManageDelivery, ReceiveProcurement, ResolveDiscrepancy,
		InitiateTransfer, VerifyTransfer, ApproveTransfer, DispatchTransfer, ReceiveTransfer, CancelTransfer,
		ManageCategories,
	},
	AssetDirector: {
		CreateAsset, SubmitAsset, VerifyAsset, AuthorizeAsset, DeleteAsset, AdjustQuantity, GenerateAssets,
		ReceiveProcurement, ResolveDiscrepancy,
		InitiateTransfer, VerifyTransfer, ApproveTransfer, DispatchTransfer, ReceiveTransfer, CancelTransfer,
		ManageCategories,
	},
	ProjectManager: {
		CreateAsset, SubmitAsset, VerifyAsset, AdjustQuantity, GenerateAssets,
		CreateProcurement, ReceiveProcurement,
		InitiateTransfer, VerifyTransfer, ApproveTransfer, DispatchTransfer, ReceiveTransfer, CancelTransfer,
	},
	ProcurementOfficer: {
		CreateProcurement, ManageDelivery, ReceiveProcurement, ResolveDiscrepancy, GenerateAssets,
	},
	SiteEngineer: {
		CreateAsset, SubmitAsset, AdjustQuantity, InitiateTransfer, ReceiveTransfer,
	},
	Warehouseman: {
		CreateAsset, SubmitAsset, AdjustQuantity, ReceiveProcurement, DispatchTransfer, ReceiveTransfer,
	},
}

// Can reports whether the role is granted the permission. System admins
// hold every permission.
func (r Role) Can(p Permission) bool {
	if r == SystemAdmin {
		return true
	}
	for _, granted := range permissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// IsDirector reports whether the role may complete a transfer in one step.
func (r Role) IsDirector() bool {
	return r == FinanceDirector || r == AssetDirector
}

// HasGlobalProjectAccess reports whether the role sees every project.
func (r Role) HasGlobalProjectAccess() bool {
	return r == SystemAdmin || r.IsDirector()
}

func (r Role) IsValid() bool {
	switch r {
	case SystemAdmin, FinanceDirector, AssetDirector, ProjectManager, ProcurementOfficer, SiteEngineer, Warehouseman, Viewer:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}
