package n8n

import "time"

// Valves are the operator-editable settings of the pipe.
type Valves struct {
	N8NURL         string
	N8NBearerToken string
	// WebUIFilesURL is the files endpoint queried with ?session_id=.
	WebUIFilesURL string
	// WebUIAPIToken authenticates the files query. When empty a token is
	// obtained for the calling user.
	WebUIAPIToken string
	InputField    string
	ResponseField string
	// EmitInterval is the minimum gap between non-terminal status events.
	EmitInterval          time.Duration
	EnableStatusIndicator bool
	// Debug logs and stores the full payload sent to n8n.
	Debug bool
}

// DefaultValves returns the out-of-the-box settings.
func DefaultValves() Valves {
	return Valves{
		N8NURL:                "https://n8n.[your domain].com/webhook/[your webhook]",
		N8NBearerToken:        "...",
		WebUIFilesURL:         "http://localhost:8080/api/v1/files",
		InputField:            "chatInput",
		ResponseField:         "output",
		EmitInterval:          2 * time.Second,
		EnableStatusIndicator: true,
	}
}

func (v Valves) withDefaults() Valves {
	d := DefaultValves()
	if v.InputField == "" {
		v.InputField = d.InputField
	}
	if v.ResponseField == "" {
		v.ResponseField = d.ResponseField
	}
	if v.WebUIFilesURL == "" {
		v.WebUIFilesURL = d.WebUIFilesURL
	}
	return v
}
