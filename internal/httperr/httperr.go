package httperr

// Error bodies returned by the eCPM read endpoint. The callback endpoint never
// returns any of these: its contract is a fixed 200 acknowledgement.
const (
	MsgIncorrectClient = "Incorrect client"
	MsgIncorrectSecret = "Incorrect secret"
	MsgRecordNotFound  = "Could not find record"
)

// ErrorResponse is the JSON error envelope of the read API.
type ErrorResponse struct {
	Error string `json:"error"`
}
