package messenger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/scanmark/scanmark/internal/proto"
)

// CreateBundle registers an uploaded bundle and its page scaffold.
func (m *Messenger) CreateBundle(ctx context.Context, req proto.BundleCreateRequest) (*proto.BundleReply, error) {
	var reply proto.BundleReply
	if err := m.do(ctx, http.MethodPost, "/bundles", req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Bundles lists all bundles with their page-state censuses.
func (m *Messenger) Bundles(ctx context.Context) ([]proto.BundleReply, error) {
	var replies []proto.BundleReply
	if err := m.do(ctx, http.MethodGet, "/bundles", nil, &replies); err != nil {
		return nil, err
	}
	return replies, nil
}

// Bundle fetches one bundle.
func (m *Messenger) Bundle(ctx context.Context, id string) (*proto.BundleReply, error) {
	var reply proto.BundleReply
	if err := m.do(ctx, http.MethodGet, "/bundles/"+url.PathEscape(id), nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// SetQRReadComplete records that the QR reading pass finished.
func (m *Messenger) SetQRReadComplete(ctx context.Context, id string) error {
	return m.do(ctx, http.MethodPatch, "/bundles/"+url.PathEscape(id)+"/qr_complete", nil, nil)
}

// Knowify binds an Unknown page to a fixed (paper, page, version) slot.
func (m *Messenger) Knowify(ctx context.Context, id string, orderIndex int, req proto.KnowifyRequest) error {
	return m.do(ctx, http.MethodPatch, pagePath(id, orderIndex, "knowify"), req, nil)
}

// Extralise binds a page as extra material for questions of a paper.
func (m *Messenger) Extralise(ctx context.Context, id string, orderIndex int, req proto.ExtraliseRequest) error {
	return m.do(ctx, http.MethodPatch, pagePath(id, orderIndex, "extralise"), req, nil)
}

// Discard removes a page from consideration.
func (m *Messenger) Discard(ctx context.Context, id string, orderIndex int, reason string) error {
	return m.do(ctx, http.MethodPatch, pagePath(id, orderIndex, "discard"), proto.DiscardRequest{Reason: reason}, nil)
}

// Unknowify reverts a classified page to Unknown.
func (m *Messenger) Unknowify(ctx context.Context, id string, orderIndex int) error {
	return m.do(ctx, http.MethodPatch, pagePath(id, orderIndex, "unknowify"), nil, nil)
}

// Rotate sets a page's rotation, in degrees, multiple of 90.
func (m *Messenger) Rotate(ctx context.Context, id string, orderIndex, rotation int) error {
	return m.do(ctx, http.MethodPatch, pagePath(id, orderIndex, "rotate"), proto.RotateRequest{Rotation: rotation}, nil)
}

// DiscardAllUnknowns discards every Unknown page of a bundle.
func (m *Messenger) DiscardAllUnknowns(ctx context.Context, id, reason string) (int, error) {
	var reply proto.BulkReply
	err := m.do(ctx, http.MethodPost, "/bundles/"+url.PathEscape(id)+"/discard_unknowns",
		proto.DiscardRequest{Reason: reason}, &reply)
	if err != nil {
		return 0, err
	}
	return reply.Converted, nil
}

// UnknowifyAllDiscards reverts every Discard page of a bundle.
func (m *Messenger) UnknowifyAllDiscards(ctx context.Context, id string) (int, error) {
	var reply proto.BulkReply
	if err := m.do(ctx, http.MethodPost, "/bundles/"+url.PathEscape(id)+"/unknowify_discards", nil, &reply); err != nil {
		return 0, err
	}
	return reply.Converted, nil
}

// Push promotes a bundle into the task pool.
func (m *Messenger) Push(ctx context.Context, id string) (*proto.PushReply, error) {
	var reply proto.PushReply
	if err := m.do(ctx, http.MethodPost, "/bundles/"+url.PathEscape(id)+"/push", nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// LockBundle takes the operator freeze on a bundle.
func (m *Messenger) LockBundle(ctx context.Context, id string) error {
	return m.do(ctx, http.MethodPatch, "/bundles/"+url.PathEscape(id)+"/lock", nil, nil)
}

// UnlockBundle releases the operator freeze.
func (m *Messenger) UnlockBundle(ctx context.Context, id string) error {
	return m.do(ctx, http.MethodPatch, "/bundles/"+url.PathEscape(id)+"/unlock", nil, nil)
}

func pagePath(id string, orderIndex int, op string) string {
	return fmt.Sprintf("/bundles/%s/pages/%d/%s", url.PathEscape(id), orderIndex, op)
}
