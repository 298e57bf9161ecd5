package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldFamilyID      = "family_id"
	FieldMemberID      = "member_id"
	FieldUserID        = "user_id"
	FieldAccountID     = "account_id"
	FieldBudgetID      = "budget_id"
	FieldLimitID       = "limit_id"
	FieldGoalID        = "goal_id"
	FieldTransferID    = "transfer_id"
	FieldTransactionID = "transaction_id"
	FieldAmountCents   = "amount_cents"
	FieldPeriodKey     = "period_key"
	FieldNoteType      = "notification_type"
)

// Components defines standard component names
const (
	ComponentApp           = "app"
	ComponentHTTP          = "http"
	ComponentMembership    = "membership"
	ComponentAccounts      = "accounts"
	ComponentBudgets       = "budgets"
	ComponentGoals         = "goals"
	ComponentTransfers     = "transfers"
	ComponentNotifications = "notifications"
	ComponentStorage       = "storage"
	ComponentLedger        = "ledger"
	ComponentAMQP          = "amqp"
	ComponentWorker        = "worker"
	ComponentSweeper       = "sweeper"
	ComponentCache         = "cache"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpDelete    = "delete"
	OpJoin      = "join"
	OpRotate    = "rotate_invite"
	OpApprove   = "approve"
	OpReject    = "reject"
	OpContrib   = "contribute"
	OpTransfer  = "transfer"
	OpReconcile = "reconcile"
	OpSweep     = "sweep"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
