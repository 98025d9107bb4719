package domain

import (
	"errors"
	"testing"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "valid lowercase", input: "sent", want: StatusSent},
		{name: "valid uppercase with spaces", input: " PROCESSING ", want: StatusProcessing},
		{name: "reserved delivered", input: "delivered", want: StatusDelivered},
		{name: "invalid", input: "queued", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseChannelFromString(t *testing.T) {
	t.Parallel()

	got, err := ParseChannelFromString(" WhatsApp ")
	if err != nil {
		t.Fatalf("ParseChannelFromString() unexpected error = %v", err)
	}
	if got != ChannelWhatsApp {
		t.Fatalf("ParseChannelFromString() = %s, want %s", got, ChannelWhatsApp)
	}

	_, err = ParseChannelFromString("fax")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseChannelFromString() error = %v, want ErrValidation", err)
	}
}

func TestStatusTransitionsOnlyMoveForward(t *testing.T) {
	t.Parallel()

	all := Statuses()
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:    true,
		{StatusProcessing, StatusProcessing}: true,
		{StatusProcessing, StatusSent}:       true,
		{StatusProcessing, StatusFailed}:     true,
		{StatusSent, StatusDelivered}:        true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s allowed = %v, want %v", from, to, got, want)
			}
		}
		if from != StatusPending && from.CanTransitionTo(StatusPending) {
			t.Errorf("%s must never return to pending", from)
		}
	}
}

func TestClaimableStatusesFollowTransitions(t *testing.T) {
	t.Parallel()

	got := ClaimableStatuses()
	want := []Status{StatusPending, StatusProcessing}
	if len(got) != len(want) {
		t.Fatalf("ClaimableStatuses() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ClaimableStatuses() = %v, want %v", got, want)
		}
	}
	for _, s := range got {
		if !s.CanTransitionTo(StatusProcessing) {
			t.Errorf("%s is claimable but cannot move to processing", s)
		}
	}
}

func TestStatusTerminalAndHandled(t *testing.T) {
	t.Parallel()

	if StatusPending.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Fatal("pending and processing are not terminal")
	}
	for _, s := range []Status{StatusSent, StatusFailed, StatusDelivered} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if !StatusSent.IsHandled() || !StatusDelivered.IsHandled() {
		t.Fatal("sent and delivered should count as handled")
	}
	if StatusFailed.IsHandled() {
		t.Fatal("failed should not count as handled")
	}
}

func TestNotificationValidate(t *testing.T) {
	t.Parallel()

	ref := "welcome_email"
	body := "Hi {{name}}"
	blank := "   "

	base := Notification{
		TenantID:    "tenant-1",
		Channel:     ChannelEmail,
		Recipient:   "john@example.com",
		TemplateRef: &ref,
	}

	tests := []struct {
		name    string
		mutate  func(*Notification)
		wantErr bool
	}{
		{
			name:   "template source",
			mutate: func(n *Notification) {},
		},
		{
			name: "inline source",
			mutate: func(n *Notification) {
				n.TemplateRef = nil
				n.Body = &body
			},
		},
		{
			name: "both sources",
			mutate: func(n *Notification) {
				n.Body = &body
			},
			wantErr: true,
		},
		{
			name: "no source",
			mutate: func(n *Notification) {
				n.TemplateRef = nil
			},
			wantErr: true,
		},
		{
			name: "blank template ref and blank body",
			mutate: func(n *Notification) {
				n.TemplateRef = &blank
				n.Body = &blank
			},
			wantErr: true,
		},
		{
			name: "missing tenant",
			mutate: func(n *Notification) {
				n.TenantID = ""
			},
			wantErr: true,
		},
		{
			name: "missing recipient",
			mutate: func(n *Notification) {
				n.Recipient = " "
			},
			wantErr: true,
		},
		{
			name: "invalid channel",
			mutate: func(n *Notification) {
				n.Channel = Channel("fax")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestDeadLetterReason(t *testing.T) {
	t.Parallel()

	if got := DeadLetterReason(FailurePermanent, " recipient rejected "); got != "permanent: recipient rejected" {
		t.Fatalf("DeadLetterReason() = %q", got)
	}
	if got := DeadLetterReason(FailureTransient, ""); got != "transient: unknown error" {
		t.Fatalf("DeadLetterReason() = %q", got)
	}
}
