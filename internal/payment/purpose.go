package payment

import (
	"context"
	"fmt"

	"certification-workers/internal/models"
)

// PurposeVisitor has one method per payment purpose. Adding a purpose adds
// a method here, so every visitor must handle it before the code builds.
type PurposeVisitor interface {
	ProcessingFee(ctx context.Context) error
	Renewal(ctx context.Context) error
	CertificateFee(ctx context.Context) error
	Other(ctx context.Context) error
}

// Purpose is the closed set of reasons a payment is made.
type Purpose interface {
	Accept(ctx context.Context, v PurposeVisitor) error
	String() string
	sealed()
}

type (
	ProcessingFee  struct{}
	Renewal        struct{}
	CertificateFee struct{}
	Other          struct{}
)

func (ProcessingFee) Accept(ctx context.Context, v PurposeVisitor) error  { return v.ProcessingFee(ctx) }
func (Renewal) Accept(ctx context.Context, v PurposeVisitor) error        { return v.Renewal(ctx) }
func (CertificateFee) Accept(ctx context.Context, v PurposeVisitor) error { return v.CertificateFee(ctx) }
func (Other) Accept(ctx context.Context, v PurposeVisitor) error          { return v.Other(ctx) }

func (ProcessingFee) String() string  { return models.PurposeProcessingFee }
func (Renewal) String() string        { return models.PurposeRenewal }
func (CertificateFee) String() string { return models.PurposeCertificateFee }
func (Other) String() string          { return models.PurposeOther }

func (ProcessingFee) sealed()  {}
func (Renewal) sealed()        {}
func (CertificateFee) sealed() {}
func (Other) sealed()          {}

// ParsePurpose maps the stored purpose string onto the closed set.
func ParsePurpose(s string) (Purpose, error) {
	switch s {
	case models.PurposeProcessingFee:
		return ProcessingFee{}, nil
	case models.PurposeRenewal:
		return Renewal{}, nil
	case models.PurposeCertificateFee:
		return CertificateFee{}, nil
	case models.PurposeOther:
		return Other{}, nil
	default:
		return nil, fmt.Errorf("unknown payment purpose %q", s)
	}
}
