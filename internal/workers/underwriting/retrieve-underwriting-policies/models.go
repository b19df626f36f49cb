// internal/workers/underwriting/retrieve-underwriting-policies/models.go
package retrieveunderwritingpolicies

type Input struct {
	// Query is free text. When empty, Stage selects the query that stage uses.
	Query string `json:"query"`
	Stage string `json:"stage"`
}

type Output struct {
	Query    string `json:"query"`
	Excerpts string `json:"excerpts"`
}
