package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// toolService posts JSON to a tool backend.
type toolService struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newToolService(baseURL, apiKey string, timeout time.Duration) toolService {
	return toolService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s toolService) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

// HTTPRetriever queries knowledge bases through a retrieval service that
// speaks the Bedrock knowledge base retrieve format.
type HTTPRetriever struct {
	service toolService
}

func NewHTTPRetriever(baseURL, apiKey string, timeout time.Duration) *HTTPRetriever {
	return &HTTPRetriever{service: newToolService(baseURL, apiKey, timeout)}
}

type retrieveRequest struct {
	RetrievalQuery struct {
		Text string `json:"text"`
	} `json:"retrievalQuery"`
	RetrievalConfiguration struct {
		VectorSearchConfiguration struct {
			NumberOfResults int `json:"numberOfResults"`
		} `json:"vectorSearchConfiguration"`
	} `json:"retrievalConfiguration"`
}

type retrieveResponse struct {
	RetrievalResults []struct {
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
		Location struct {
			Type       string `json:"type"`
			S3Location struct {
				URI string `json:"uri"`
			} `json:"s3Location"`
			WebLocation struct {
				URL string `json:"url"`
			} `json:"webLocation"`
		} `json:"location"`
		Score float64 `json:"score"`
	} `json:"retrievalResults"`
}

func (r *HTTPRetriever) Retrieve(ctx context.Context, knowledgeBaseID, query string, maxResults int) ([]Passage, error) {
	var req retrieveRequest
	req.RetrievalQuery.Text = query
	req.RetrievalConfiguration.VectorSearchConfiguration.NumberOfResults = maxResults

	var resp retrieveResponse
	if err := r.service.post(ctx, "/knowledgebases/"+url.PathEscape(knowledgeBaseID)+"/retrieve", req, &resp); err != nil {
		return nil, fmt.Errorf("retrieve from knowledge base %s: %w", knowledgeBaseID, err)
	}

	out := make([]Passage, 0, len(resp.RetrievalResults))
	for _, hit := range resp.RetrievalResults {
		location := hit.Location.S3Location.URI
		if location == "" {
			location = hit.Location.WebLocation.URL
		}
		out = append(out, Passage{
			KnowledgeBaseID: knowledgeBaseID,
			Text:            hit.Content.Text,
			Score:           hit.Score,
			Location:        location,
		})
	}
	return out, nil
}

// HTTPCodeRunner executes code in a remote sandbox.
type HTTPCodeRunner struct {
	service toolService
}

func NewHTTPCodeRunner(baseURL, apiKey string, timeout time.Duration) *HTTPCodeRunner {
	return &HTTPCodeRunner{service: newToolService(baseURL, apiKey, timeout)}
}

func (r *HTTPCodeRunner) Run(ctx context.Context, language, code string) (CodeResult, error) {
	var out CodeResult
	err := r.service.post(ctx, "/execute", map[string]string{"language": language, "code": code}, &out)
	if err != nil {
		return CodeResult{}, fmt.Errorf("execute %s code: %w", language, err)
	}
	return out, nil
}
