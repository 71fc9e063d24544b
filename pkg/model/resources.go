package model

// Resource names used by authorization and filtering. These mirror the REST
// collection endpoints plus the self-service account views.
const (
	ResourceData           = "data"
	ResourceIngestion      = "ingestion"
	ResourceAnalysis       = "analysis"
	ResourceTrials         = "trials"
	ResourceAccounts       = "accounts"
	ResourceAccountsCreate = "accounts_create"
	ResourceAccountsInfo   = "accounts_info"
	ResourceAccountsUpdate = "accounts_update"
	ResourceTest           = "test"
)
