// Package ruleexec provides the default chain.RuleExecutor: a thin
// HTTP client dispatching each rule id to a configured base URL,
// reusing the generic request/response executor the rest of the
// module keeps as a standalone transport helper. The rule executor
// itself — the service that actually talks to breach databases,
// company registries, WHOIS, and OSINT providers — is an external
// collaborator; this package only speaks its wire contract.
package ruleexec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"

	eveHTTP "github.com/zadorian/submarine/http"
	"github.com/zadorian/submarine/internal/chain"
)

// HTTPExecutor dispatches ExecuteRule calls as POST requests against
// baseURL + "/rules/" + ruleID, encoding input as a JSON body and
// decoding the response into a chain.RuleResult. The remote contract
// matches the rule-table shape already loaded by the Rule Registry:
// a rule id resolves to whatever transformation the remote service
// implements for it.
type HTTPExecutor struct {
	baseURL        string
	timeoutSeconds int
	retryCount     int
	log            *logrus.Entry
}

// NewHTTPExecutor builds an executor targeting baseURL (no trailing
// slash expected). A zero timeoutSeconds defaults to 30s via
// http.NewRequest's own default.
func NewHTTPExecutor(baseURL string, timeoutSeconds, retryCount int, log *logrus.Entry) *HTTPExecutor {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &HTTPExecutor{baseURL: baseURL, timeoutSeconds: timeoutSeconds, retryCount: retryCount, log: log}
}

type ruleRequestBody struct {
	Input string `json:"input"`
}

type ruleResponseBody struct {
	Status string                 `json:"status"`
	Source string                 `json:"source"`
	Data   map[string]interface{} `json:"data"`
	Error  string                 `json:"error"`
}

// ExecuteRule satisfies chain.RuleExecutor. Transport failures and
// non-2xx responses are reported as a failed RuleResult (nil error)
// rather than propagated, matching spec.md §7's "individual step
// failures never abort the chain" semantics — the chain package is
// the one place that distinguishes a hard error from a failed step.
func (e *HTTPExecutor) ExecuteRule(ctx context.Context, ruleID, input string) (chain.RuleResult, error) {
	body, err := json.Marshal(ruleRequestBody{Input: input})
	if err != nil {
		return chain.RuleResult{Status: "failed", Error: err.Error()}, nil
	}

	req := eveHTTP.NewRequest("POST", e.baseURL+"/rules/"+url.PathEscape(ruleID))
	req.Ctx = ctx
	req.JSONBody = string(body)
	req.Headers["Content-Type"] = "application/json"
	if e.timeoutSeconds > 0 {
		req.Timeout = e.timeoutSeconds
	}
	req.RetryCount = e.retryCount

	resp, err := eveHTTP.Execute(req)
	if err != nil {
		e.log.WithField("rule_id", ruleID).WithError(err).Debug("ruleexec: transport failure")
		return chain.RuleResult{Status: "failed", Error: err.Error()}, nil
	}
	if !resp.IsSuccess() {
		return chain.RuleResult{Status: "failed", Error: fmt.Sprintf("rule executor returned %s", resp.Status)}, nil
	}

	var decoded ruleResponseBody
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return chain.RuleResult{Status: "failed", Error: fmt.Sprintf("decoding rule response: %v", err)}, nil
	}
	if decoded.Status == "" {
		decoded.Status = "success"
	}
	return chain.RuleResult{Status: decoded.Status, Source: decoded.Source, Data: decoded.Data, Error: decoded.Error}, nil
}
