package proto

// Request and response body types for the Scanmark HTTP API. Both the
// gin handlers and the messenger client marshal through these, so the
// two sides cannot drift apart.

// InfoReply is the unauthenticated version report.
type InfoReply struct {
	APIVersion int    `json:"api_version"`
	Release    string `json:"release,omitempty"`
}

// LoginRequest carries credentials plus the client build's own API
// window, letting the server reject builds it cannot serve.
type LoginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Exclusive    bool   `json:"exclusive,omitempty"`
	ClientMinAPI int    `json:"client_min_api"`
	ClientMaxAPI int    `json:"client_max_api"`
}

// LoginReply returns the opaque session token.
type LoginReply struct {
	Token string `json:"token"`
}

// LogoutRequest controls whether the token is revoked server-side.
type LogoutRequest struct {
	RevokeToken bool `json:"revoke_token"`
}

// ClearRequest clears outstanding tokens using credentials instead of a
// token, for crash recovery.
type ClearRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ImageMeta references one task image by opaque id and content hash.
type ImageMeta struct {
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	Rotation int    `json:"rotation"`
	Extra    bool   `json:"extra,omitempty"`
}

// NextTaskReply names the suggested task, or Found=false when no ToDo
// task satisfies the filters.
type NextTaskReply struct {
	Found    bool   `json:"found"`
	TaskCode string `json:"task_code,omitempty"`
}

// ClaimReply is handed back on a successful claim.
type ClaimReply struct {
	TaskCode       string      `json:"task_code"`
	Version        int         `json:"version"`
	IntegrityToken string      `json:"integrity_token"`
	Tags           []string    `json:"tags"`
	Images         []ImageMeta `json:"images"`
}

// SubmitMeta is the JSON metadata part of the multipart submission; the
// annotated image travels as a sibling part. RubricIDs is declared as a
// bare interface because its wire shape is version-gated (see
// EncodeRubricIDs).
type SubmitMeta struct {
	TaskCode       string      `json:"task_code"`
	Score          float64     `json:"score"`
	MarkingSeconds int         `json:"marking_seconds"`
	IntegrityToken string      `json:"integrity_token"`
	RubricIDs      interface{} `json:"rubric_ids"`
	Annotation     string      `json:"annotation"`
	ImageHash      string      `json:"image_hash"`
}

// ProgressSnapshot reports marking progress for a (question, version)
// pool alongside the caller's own counts.
type ProgressSnapshot struct {
	TotalTasks  int `json:"total_tasks"`
	TotalMarked int `json:"total_marked"`
	UserClaimed int `json:"user_claimed"`
	UserMarked  int `json:"user_marked"`
	QuotaLimit  int `json:"quota_limit"`
}

// ReassignRequest names the new owner for a privileged reassignment.
type ReassignRequest struct {
	NewOwner string `json:"new_owner"`
}

// TagRequest adds or removes one tag on a task.
type TagRequest struct {
	Tag string `json:"tag"`
}

// BundleCreateRequest registers an uploaded bundle and its page scaffold.
// Pages arrive Unknown unless the uploader's QR pass already classified
// them.
type BundleCreateRequest struct {
	Slug        string             `json:"slug"`
	ContentHash string             `json:"content_hash"`
	Pages       []BundlePageCreate `json:"pages"`
}

// BundlePageCreate describes one page at bundle registration time. A
// non-empty ReadError marks a page the scanner's content reader could
// not process; such pages start in the Error state.
type BundlePageCreate struct {
	OrderIndex int    `json:"order_index"`
	ImageHash  string `json:"image_hash"`
	Rotation   int    `json:"rotation"`
	ReadError  string `json:"read_error,omitempty"`
}

// BundleReply summarizes one bundle and its page-state census.
type BundleReply struct {
	ID             string         `json:"id"`
	Slug           string         `json:"slug"`
	Owner          string         `json:"owner"`
	PageCount      int            `json:"page_count"`
	QRReadComplete bool           `json:"qr_read_complete"`
	Pushed         bool           `json:"pushed"`
	LockedBy       string         `json:"locked_by,omitempty"`
	PageStates     map[string]int `json:"page_states"`
}

// KnowifyRequest binds an Unknown page to a fixed paper/page slot.
type KnowifyRequest struct {
	PaperNumber int `json:"paper_number"`
	PageNumber  int `json:"page_number"`
	Version     int `json:"version"`
}

// ExtraliseRequest binds a page as extra material for one or more
// questions of a paper.
type ExtraliseRequest struct {
	PaperNumber     int   `json:"paper_number"`
	QuestionIndexes []int `json:"question_indexes"`
}

// DiscardRequest records why a page was discarded.
type DiscardRequest struct {
	Reason string `json:"reason"`
}

// RotateRequest sets a page's rotation, in degrees, multiple of 90.
type RotateRequest struct {
	Rotation int `json:"rotation"`
}

// BulkReply reports how many pages a bulk transition converted before
// stopping.
type BulkReply struct {
	Converted int `json:"converted"`
}

// PushReply reports the outcome of a successful push.
type PushReply struct {
	PapersTouched int `json:"papers_touched"`
	TasksCreated  int `json:"tasks_created"`
	ExtrasAdded   int `json:"extras_added"`
}
