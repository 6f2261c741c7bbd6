package model_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/model"
	"github.com/shopspring/decimal"
)

func TestPostingStatus_CanTransitionTo(t *testing.T) {
	all := []model.PostingStatus{model.PostingQueued, model.PostingValidated, model.PostingPosted, model.PostingFailed}
	legal := map[[2]model.PostingStatus]bool{
		{model.PostingQueued, model.PostingValidated}: true,
		{model.PostingQueued, model.PostingFailed}:    true,
		{model.PostingValidated, model.PostingPosted}: true,
		{model.PostingValidated, model.PostingFailed}: true,
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]model.PostingStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCreditAmount(t *testing.T) {
	zar := "ZAR"
	rate := decimal.RequireFromString("18.5")

	tests := []struct {
		name    string
		req     model.TransferRequest
		want    string
		wantErr error
	}{
		{
			name: "same currency",
			req:  model.TransferRequest{SourceCurrency: "ZAR", Amount: decimal.NewFromInt(10000)},
			want: "10000",
		},
		{
			name: "explicit same currency",
			req:  model.TransferRequest{SourceCurrency: "ZAR", DestinationCurrency: &zar, Amount: decimal.NewFromInt(5)},
			want: "5",
		},
		{
			name: "cross currency",
			req:  model.TransferRequest{SourceCurrency: "USD", DestinationCurrency: &zar, Amount: decimal.NewFromInt(1000), ExchangeRate: &rate},
			want: "18500",
		},
		{
			name:    "cross currency without rate",
			req:     model.TransferRequest{SourceCurrency: "USD", DestinationCurrency: &zar, Amount: decimal.NewFromInt(1000)},
			wantErr: model.ErrMissingRate,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.req.CreditAmount()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error: got %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreditAmount() error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSubmitRequest_Validate(t *testing.T) {
	acct := uuid.New()
	valid := func() model.SubmitRequest {
		return model.SubmitRequest{
			SourceType:           model.SourceExternal,
			DestinationType:      model.DestinationMainBank,
			SourceCurrency:       "zar",
			Amount:               decimal.NewFromInt(1),
			TransferType:         model.TransferCapitalInjection,
			DestinationAccountID: &acct,
		}
	}

	tests := []struct {
		name   string
		mutate func(r *model.SubmitRequest)
		ok     bool
	}{
		{"valid", func(r *model.SubmitRequest) {}, true},
		{"zero amount", func(r *model.SubmitRequest) { r.Amount = decimal.Zero }, false},
		{"negative amount", func(r *model.SubmitRequest) { r.Amount = decimal.NewFromInt(-3) }, false},
		{"bad currency", func(r *model.SubmitRequest) { r.SourceCurrency = "RAND" }, false},
		{"unknown destination", func(r *model.SubmitRequest) { r.DestinationType = "moon" }, false},
		{"unknown transfer type", func(r *model.SubmitRequest) { r.TransferType = "gift" }, false},
		{"ledger without account", func(r *model.SubmitRequest) { r.DestinationAccountID = nil }, false},
		{"holding without account", func(r *model.SubmitRequest) {
			r.DestinationType = model.DestinationFXHolding
			r.DestinationAccountID = nil
		}, true},
		{"cross currency without rate accepted", func(r *model.SubmitRequest) {
			usd := "usd"
			r.DestinationCurrency = &usd
		}, true},
		{"zero rate", func(r *model.SubmitRequest) {
			z := decimal.Zero
			r.ExchangeRate = &z
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := valid()
			tc.mutate(&r)
			r.Normalize()
			err := r.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, model.ErrValidationFailed) {
				t.Errorf("error: got %v, want validation error", err)
			}
		})
	}
}

func TestNormalize_DropsRedundantDestinationCurrency(t *testing.T) {
	zar := " zar "
	r := model.SubmitRequest{SourceCurrency: "ZAR", DestinationCurrency: &zar}
	r.Normalize()
	if r.DestinationCurrency != nil {
		t.Errorf("destination currency: got %q, want nil", *r.DestinationCurrency)
	}
}

func TestAlreadyPostedError_Unwrap(t *testing.T) {
	id := uuid.New()
	conflict := &model.ConflictError{TransferID: id, Expected: model.PostingValidated, Actual: model.PostingPosted, ActedBy: "alice"}
	err := error(&model.AlreadyPostedError{TransferID: id, ActedBy: "alice", Conflict: conflict})

	if !errors.Is(err, model.ErrAlreadyPosted) || !errors.Is(err, model.ErrConflict) {
		t.Errorf("errors.Is chain broken for %v", err)
	}
	if bare := error(&model.AlreadyPostedError{TransferID: id}); errors.Is(bare, model.ErrConflict) {
		t.Error("AlreadyPostedError without conflict should not match ErrConflict")
	}
}
