package validate

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/LeventeLantos/safety-checkin/internal/model"
	"github.com/LeventeLantos/safety-checkin/internal/timeutil"
)

var authoringTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func TestMessage(t *testing.T) {
	t.Parallel()

	if err := Message("going hiking, back by six"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, text := range []string{"", "   ", "\n\t"} {
		err := Message(text)
		if err == nil {
			t.Fatalf("expected error for %q, got nil", text)
		}
		assertField(t, err, "message")
	}
}

func TestRecipients_CountBounds(t *testing.T) {
	t.Parallel()

	err := Recipients(nil)
	if err == nil {
		t.Fatalf("expected error for zero recipients")
	}
	assertField(t, err, "recipients")

	many := make([]model.Recipient, MaxRecipients+1)
	for i := range many {
		many[i] = model.Recipient{Name: "R", Email: fmt.Sprintf("r%d@example.com", i)}
	}
	err = Recipients(many)
	if err == nil {
		t.Fatalf("expected error for %d recipients", len(many))
	}
	assertField(t, err, "recipients")

	if err := Recipients(many[:MaxRecipients]); err != nil {
		t.Fatalf("expected %d recipients to be accepted, got: %v", MaxRecipients, err)
	}
}

func TestRecipients_EntryFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		r    model.Recipient
		ok   bool
	}{
		{"valid", model.Recipient{Name: "John Smith", Email: "john.smith@email.com"}, true},
		{"valid with phone", model.Recipient{Name: "Sarah", Email: "sarah.j@email.com", Phone: "+1 (555) 987-6543"}, true},
		{"missing name", model.Recipient{Email: "a@b.com"}, false},
		{"blank name", model.Recipient{Name: "  ", Email: "a@b.com"}, false},
		{"missing email", model.Recipient{Name: "A"}, false},
		{"implausible email", model.Recipient{Name: "A", Email: "not-an-email"}, false},
		{"email without domain", model.Recipient{Name: "A", Email: "a@"}, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Recipients([]model.Recipient{tc.r})
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				assertField(t, err, "recipients")
			}
		})
	}
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	t.Run("future instant accepted", func(t *testing.T) {
		t.Parallel()

		got, err := Schedule(model.Schedule{Date: "2025-06-01", TimeOfDay: "18:00", Timezone: "PST"}, authoringTime)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want, _ := timeutil.ToInstant("2025-06-01", "18:00", "PST")
		if !got.Equal(want) {
			t.Fatalf("expected instant %v, got %v", want, got)
		}
	})

	t.Run("missing components rejected", func(t *testing.T) {
		t.Parallel()

		cases := []model.Schedule{
			{TimeOfDay: "18:00", Timezone: "UTC"},
			{Date: "2025-06-01", Timezone: "UTC"},
			{Date: "2025-06-01", TimeOfDay: "18:00"},
		}
		for _, s := range cases {
			_, err := Schedule(s, authoringTime)
			if err == nil {
				t.Fatalf("expected error for %+v, got nil", s)
			}
			assertField(t, err, "schedule")
		}
	})

	t.Run("past instant rejected", func(t *testing.T) {
		t.Parallel()

		_, err := Schedule(model.Schedule{Date: "2025-04-01", TimeOfDay: "18:00", Timezone: "UTC"}, authoringTime)
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		assertField(t, err, "schedule")
	})

	t.Run("exactly now rejected", func(t *testing.T) {
		t.Parallel()

		_, err := Schedule(model.Schedule{Date: "2025-05-01", TimeOfDay: "12:00", Timezone: "UTC"}, authoringTime)
		if err == nil {
			t.Fatalf("expected instant equal to now to be rejected")
		}
	})

	t.Run("bad time input surfaces as InvalidTimeInputError", func(t *testing.T) {
		t.Parallel()

		_, err := Schedule(model.Schedule{Date: "2025-06-01", TimeOfDay: "25:00", Timezone: "UTC"}, authoringTime)
		var inputErr *timeutil.InvalidTimeInputError
		if !errors.As(err, &inputErr) {
			t.Fatalf("expected *InvalidTimeInputError, got %T: %v", err, err)
		}
	})
}

func TestActivation(t *testing.T) {
	t.Parallel()

	rec := &model.CheckInRecord{
		Message:    "Wonderland Trail, back by 6 PM",
		Recipients: []model.Recipient{{Name: "John Smith", Email: "john.smith@email.com"}},
		Schedule:   model.Schedule{Date: "2025-06-01", TimeOfDay: "18:00", Timezone: "PST"},
	}

	deadline, err := Activation(rec, authoringTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want, _ := timeutil.ToInstant("2025-06-01", "18:00", "PST")
	if !deadline.Equal(want) {
		t.Fatalf("expected deadline %v, got %v", want, deadline)
	}

	// Any single failing gate blocks activation.
	blank := *rec
	blank.Message = " "
	if _, err := Activation(&blank, authoringTime); err == nil {
		t.Fatalf("expected blank message to block activation")
	}

	none := *rec
	none.Recipients = nil
	if _, err := Activation(&none, authoringTime); err == nil {
		t.Fatalf("expected empty recipients to block activation")
	}
}

func assertField(t *testing.T, err error, field string) {
	t.Helper()

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if verr.Field != field {
		t.Fatalf("expected field %q, got %q (%v)", field, verr.Field, verr)
	}
}
