package response

// VerifyOTPResponse carries the opaque bearer token. The code value itself
// never appears in any response.
type VerifyOTPResponse struct {
	Token string `json:"token"`
}
