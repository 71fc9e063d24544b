package model

// Role is an account-level role controlling which resources a user may call.
type Role string

const (
	RoleReader     Role = "reader"
	RoleUploader   Role = "uploader"
	RoleLead       Role = "lead"
	RoleAdmin      Role = "admin"
	RoleDeveloper  Role = "developer"
	RoleRegistrant Role = "registrant"
	RoleDisabled   Role = "disabled"
	RoleSystem     Role = "system"
)

// GrantKind is the scope of a single permission entry. The trial-wide and
// assay-wide kinds carry exactly one reference; the plain read/write kinds
// carry both and denote a trial-assay pair.
type GrantKind string

const (
	GrantRead       GrantKind = "read"
	GrantWrite      GrantKind = "write"
	GrantTrialRead  GrantKind = "trial_r"
	GrantTrialWrite GrantKind = "trial_w"
	GrantAssayRead  GrantKind = "assay_r"
	GrantAssayWrite GrantKind = "assay_w"
)

// Grant is one scoped permission owned by an Account. The wire field for the
// kind is "role" for compatibility with existing account documents.
type Grant struct {
	Trial string    `json:"trial,omitempty"`
	Assay string    `json:"assay,omitempty"`
	Kind  GrantKind `json:"role"`
}

// Principal is the authenticated identity for a single request. It is built
// by the token verifier and threaded explicitly through authorization and
// filtering; it is never persisted.
type Principal struct {
	Email string `json:"email"`
	// Service marks machine-to-machine tokens. Service principals are
	// exempt from visibility filtering.
	Service bool                   `json:"service"`
	Claims  map[string]interface{} `json:"-"`
}

// Account is the persisted user record behind a Principal's email.
type Account struct {
	ID           string  `json:"_id,omitempty"`
	Email        string  `json:"email" validate:"required,email"`
	Username     string  `json:"username,omitempty"`
	Role         Role    `json:"role"`
	Approved     bool    `json:"approved"`
	Organization string  `json:"organization,omitempty"`
	FirstName    string  `json:"first_n,omitempty"`
	LastName     string  `json:"last_n,omitempty"`
	Permissions  []Grant `json:"permissions,omitempty"`
	CreateDate   string  `json:"account_create_date,omitempty"`
	LastAccess   string  `json:"last_access,omitempty"`
}

// TrialAssay is one assay registered under a trial.
type TrialAssay struct {
	AssayName string `json:"assay_name" validate:"required"`
	AssayID   string `json:"assay_id" validate:"required"`
}

// Trial groups data records under a study. Collaborators is the
// coarse-grained "can read everything in this trial" list, distinct from
// fine-grained Grants.
type Trial struct {
	ID                    string       `json:"_id,omitempty"`
	TrialName             string       `json:"trial_name" validate:"required"`
	PrincipalInvestigator string       `json:"principal_investigator" validate:"required"`
	Collaborators         []string     `json:"collaborators,omitempty"`
	StartDate             string       `json:"start_date,omitempty"`
	Assays                []TrialAssay `json:"assays,omitempty"`
	Samples               []string     `json:"samples,omitempty"`
	Locked                bool         `json:"locked"`
}

// ChildRef points at a record derived from a DataRecord, tracked so that
// revoking visibility on the parent cascades to its derivatives.
type ChildRef struct {
	ID       string `json:"_id" validate:"required"`
	Resource string `json:"resource" validate:"required"`
}

// DataRecord represents one ingested file.
type DataRecord struct {
	ID          string     `json:"_id,omitempty"`
	FileName    string     `json:"file_name" validate:"required"`
	SampleID    string     `json:"sample_id,omitempty"`
	Trial       string     `json:"trial" validate:"required"`
	Assay       string     `json:"assay" validate:"required"`
	GSURI       string     `json:"gs_uri,omitempty"`
	Mapping     string     `json:"mapping,omitempty"`
	DateCreated string     `json:"date_created,omitempty"`
	Processed   bool       `json:"processed"`
	Visibility  bool       `json:"visibility"`
	Children    []ChildRef `json:"children"`
}

// DataPatch carries the mutable fields of a data record. Pointers
// distinguish "not supplied" from an explicit false.
type DataPatch struct {
	Visibility *bool `json:"visibility,omitempty"`
	Processed  *bool `json:"processed,omitempty"`
}

// JobStatus is the progress of an upload job or analysis run.
type JobStatus struct {
	Progress string `json:"progress" validate:"omitempty,progress"`
	Message  string `json:"message,omitempty"`
}

// Progress values for JobStatus.
const (
	ProgressInProgress = "In Progress"
	ProgressCompleted  = "Completed"
	ProgressAborted    = "Aborted"
	ProgressFailed     = "Failed"
)

// FileDeclaration announces one file that an upload job intends to land.
type FileDeclaration struct {
	Trial    string `json:"trial" validate:"required"`
	Assay    string `json:"assay" validate:"required"`
	FileName string `json:"file_name" validate:"required"`
	SampleID string `json:"sample_id,omitempty"`
	GSURI    string `json:"gs_uri,omitempty"`
}

// UploadJob is a batch of file declarations created atomically on POST.
type UploadJob struct {
	ID            string            `json:"_id,omitempty"`
	StartedBy     string            `json:"started_by,omitempty"`
	StartTime     string            `json:"start_time,omitempty"`
	EndTime       string            `json:"end_time,omitempty"`
	Status        JobStatus         `json:"status"`
	NumberOfFiles int               `json:"number_of_files"`
	Files         []FileDeclaration `json:"files" validate:"required,min=1,dive"`
}

// AnalysisRun tracks one pipeline execution over a trial/assay.
type AnalysisRun struct {
	ID                   string    `json:"_id,omitempty"`
	Trial                string    `json:"trial" validate:"required"`
	TrialName            string    `json:"trial_name,omitempty"`
	Assay                string    `json:"assay" validate:"required"`
	ExperimentalStrategy string    `json:"experimental_strategy,omitempty"`
	Status               JobStatus `json:"status"`
	StartDate            string    `json:"start_date,omitempty"`
	EndDate              string    `json:"end_date,omitempty"`
	StartedBy            string    `json:"started_by,omitempty"`
	FilesUsed            []string  `json:"files_used,omitempty"`
	FilesGenerated       []string  `json:"files_generated,omitempty"`
}

// SystemIdentity is the fixed principal email assigned to service-audience
// tokens. It matches the identity the task runner authenticates with.
const SystemIdentity = "task-runner"
