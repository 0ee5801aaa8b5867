package core

import "net/http"

const problemTypeDefault = "about:blank"

// Problem is an RFC 7807 error document. Code is the stable identifier
// clients branch on; Detail is for humans.
type Problem struct {
	Type     string
	Title    string
	Status   int
	Detail   string
	Code     string
	Instance string
	Extras   map[string]any
}

// NewProblem builds a problem for status with the canonical title.
func NewProblem(status int, code, detail string) *Problem {
	return (&Problem{Status: status, Code: code, Detail: detail}).Normalize()
}

// Normalize fills missing status, title and type in place. A nil receiver
// yields a generic internal error.
func (p *Problem) Normalize() *Problem {
	if p == nil {
		p = &Problem{}
	}
	if p.Status == 0 {
		p.Status = http.StatusInternalServerError
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	if p.Type == "" {
		p.Type = problemTypeDefault
	}
	return p
}

// Body renders the wire form. Extras cannot shadow the reserved members.
func (p *Problem) Body() map[string]any {
	body := make(map[string]any, 6+len(p.Extras))
	for key, value := range p.Extras {
		if !reservedProblemKeys[key] {
			body[key] = value
		}
	}
	body["status"] = p.Status
	body["error"] = p.Title
	body["type"] = p.Type
	optional := map[string]string{"details": p.Detail, "code": p.Code, "instance": p.Instance}
	for key, value := range optional {
		if value != "" {
			body[key] = value
		}
	}
	return body
}

var reservedProblemKeys = map[string]bool{
	"status": true, "error": true, "details": true, "code": true, "type": true, "instance": true,
}
