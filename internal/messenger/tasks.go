package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/scanmark/scanmark/internal/proto"
)

// NextFilters narrows the pool a next-task request draws from.
type NextFilters struct {
	QuestionIndex int
	Version       int
	PreferredTags []string
	MinPaper      int
	MaxPaper      int
}

// RequestNext asks for some claimable task matching the filters. Returns
// ("", false, nil) when the pool is empty.
func (m *Messenger) RequestNext(ctx context.Context, f NextFilters) (string, bool, error) {
	q := url.Values{}
	q.Set("q", strconv.Itoa(f.QuestionIndex))
	if f.Version > 0 {
		q.Set("version", strconv.Itoa(f.Version))
	}
	if len(f.PreferredTags) > 0 {
		q.Set("tags", strings.Join(f.PreferredTags, ","))
	}
	if f.MinPaper > 0 {
		q.Set("min_paper", strconv.Itoa(f.MinPaper))
	}
	if f.MaxPaper > 0 {
		q.Set("max_paper", strconv.Itoa(f.MaxPaper))
	}

	var reply proto.NextTaskReply
	if err := m.do(ctx, http.MethodGet, "/tasks/next?"+q.Encode(), nil, &reply); err != nil {
		return "", false, err
	}
	return reply.TaskCode, reply.Found, nil
}

// Claim atomically takes a task out of the pool. Exactly one concurrent
// claimer wins; the rest fail with AlreadyClaimed. A stale
// expectedVersion fails with VersionMismatch.
func (m *Messenger) Claim(ctx context.Context, taskCode string, expectedVersion int) (*proto.ClaimReply, error) {
	path := fmt.Sprintf("/tasks/%s/claim?version=%d", url.PathEscape(taskCode), expectedVersion)
	var reply proto.ClaimReply
	if err := m.do(ctx, http.MethodPatch, path, nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Abandon returns a claimed task to the pool unmarked.
func (m *Messenger) Abandon(ctx context.Context, taskCode string) error {
	return m.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskCode)+"/abandon", nil, nil)
}

// Reset returns a task to the pool from any state. Manager only.
func (m *Messenger) Reset(ctx context.Context, taskCode string) error {
	return m.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskCode)+"/reset", nil, nil)
}

// Reassign hands a claimed task to a different owner. Manager only.
func (m *Messenger) Reassign(ctx context.Context, taskCode, newOwner string) error {
	return m.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskCode)+"/reassign",
		proto.ReassignRequest{NewOwner: newOwner}, nil)
}

// AddTag attaches a tag to a task.
func (m *Messenger) AddTag(ctx context.Context, taskCode, tag string) error {
	return m.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(taskCode)+"/tags",
		proto.TagRequest{Tag: tag}, nil)
}

// RemoveTag detaches a tag from a task.
func (m *Messenger) RemoveTag(ctx context.Context, taskCode, tag string) error {
	path := "/tasks/" + url.PathEscape(taskCode) + "/tags/" + url.PathEscape(tag)
	return m.do(ctx, http.MethodDelete, path, nil, nil)
}

// Progress fetches the marking snapshot for a question pool.
func (m *Messenger) Progress(ctx context.Context, questionIndex, version int) (*proto.ProgressSnapshot, error) {
	q := url.Values{}
	q.Set("q", strconv.Itoa(questionIndex))
	if version > 0 {
		q.Set("version", strconv.Itoa(version))
	}
	var snapshot proto.ProgressSnapshot
	if err := m.do(ctx, http.MethodGet, "/progress?"+q.Encode(), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// TaskCode renders a task's wire identifier at the negotiated version.
func (m *Messenger) TaskCode(paperNumber, questionIndex int) string {
	return proto.TaskCode(m.Version(), paperNumber, questionIndex)
}

// SubmissionArtifact is everything a marker hands back for one task.
type SubmissionArtifact struct {
	Score          float64
	MarkingSeconds int
	IntegrityToken string
	RubricIDs      []string
	Annotation     string // annotation JSON
	Image          []byte // annotated page image
}

// Submit uploads a completed marking as a multipart request: a JSON
// metadata part plus the annotated image. The rubric list's wire shape
// is gated on the negotiated version. Failures are never retried here;
// the caller decides what a NetworkTimeout means for its queue.
func (m *Messenger) Submit(ctx context.Context, taskCode string, art SubmissionArtifact) (*proto.ProgressSnapshot, error) {
	meta := proto.SubmitMeta{
		TaskCode:       taskCode,
		Score:          art.Score,
		MarkingSeconds: art.MarkingSeconds,
		IntegrityToken: art.IntegrityToken,
		RubricIDs:      proto.EncodeRubricIDs(m.Version(), art.RubricIDs),
		Annotation:     art.Annotation,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("messenger: marshal submit meta: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("meta", string(metaJSON)); err != nil {
		return nil, fmt.Errorf("messenger: write meta part: %w", err)
	}
	if len(art.Image) > 0 {
		part, err := w.CreateFormFile("image", "annotated.png")
		if err != nil {
			return nil, fmt.Errorf("messenger: create image part: %w", err)
		}
		if _, err := part.Write(art.Image); err != nil {
			return nil, fmt.Errorf("messenger: write image part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("messenger: finish multipart body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := "/tasks/" + url.PathEscape(taskCode) + "/submit"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.base+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("messenger: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	m.setHeaders(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if err := decodeError(resp); err != nil {
		return nil, err
	}
	var snapshot proto.ProgressSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("messenger: decode submit reply: %w", err)
	}
	return &snapshot, nil
}
