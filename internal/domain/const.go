package domain

const (
	CeremonySessionCtxKey = "pw-ceremonySession"
	RequestIDCtxKey       = "pw-requestId"
)

const (
	CeremonySessionHeader = "X-Ceremony-Session"
)
