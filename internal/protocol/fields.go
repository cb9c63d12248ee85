package protocol

// NewResponse encodes "response: <status>[ <description>]\n".
func NewResponse(status, description string) ([]byte, error) {
	value := status
	if description != "" {
		value += " " + description
	}
	return Encode(KeyResponse, value)
}

// NewSuccess encodes the bare success response used for login replies and acks.
func NewSuccess() ([]byte, error) {
	return NewResponse(StatusSuccess, "")
}

// NewError encodes an error response with description.
func NewError(description string) ([]byte, error) {
	return NewResponse(StatusError, description)
}

// NewEndpointMessage encodes user-info or open-channel for ep.
func NewEndpointMessage(key Key, ep Endpoint) ([]byte, error) {
	return Encode(key, FormatEndpoint(ep))
}

// FormatEndpoint renders "<name> <ipv4>:<port>".
func FormatEndpoint(ep Endpoint) string {
	return ep.Name + " " + ep.Addr.String()
}
