package client

import (
	"context"

	"github.com/google/uuid"
)

const OfflineGatewayName = "offline"

// OfflineGateway settles cash on delivery and bank transfers. Nothing leaves
// the process: a capture succeeds once a courier or an admin supplies the
// receipt or transfer reference.
type OfflineGateway struct{}

func NewOfflineGateway() *OfflineGateway {
	return &OfflineGateway{}
}

func (g *OfflineGateway) Name() string { return OfflineGatewayName }

func (g *OfflineGateway) CreateCharge(_ context.Context, req ChargeRequest) (*Charge, error) {
	return &Charge{Handle: "offline-" + req.Reference}, nil
}

func (g *OfflineGateway) Capture(_ context.Context, req CaptureRequest) (*CaptureResult, error) {
	if req.ConfirmationRef == "" {
		return &CaptureResult{Outcome: CapturePending, Reason: "awaiting receipt reference"}, nil
	}
	return &CaptureResult{Outcome: CaptureCaptured, TransactionRef: req.ConfirmationRef}, nil
}

func (g *OfflineGateway) Refund(_ context.Context, _ RefundRequest) (*RefundResult, error) {
	return &RefundResult{RefundRef: "offline-refund-" + uuid.NewString()}, nil
}
