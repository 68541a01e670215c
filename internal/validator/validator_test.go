package validator

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/brokerlink/internal/model"
)

func TestSimulatedEmptyToken(t *testing.T) {
	t.Parallel()
	v := NewSimulated(0)

	res := v.TestConnection(context.Background(), "")
	if res.OK || res.Reason != model.ReasonEmptyToken {
		t.Fatalf("got %+v, want empty_token failure", res)
	}
}

func TestSimulatedRejectsShortToken(t *testing.T) {
	t.Parallel()
	v := NewSimulated(0)

	res := v.TestConnection(context.Background(), "short")
	if res.OK || res.Reason != model.ReasonRejected {
		t.Fatalf("got %+v, want rejected failure", res)
	}
}

func TestSimulatedSuccessIsDeterministic(t *testing.T) {
	t.Parallel()
	v := NewSimulated(0)
	const token = "tok-12345678"

	first := v.TestConnection(context.Background(), token)
	second := v.TestConnection(context.Background(), token)
	if !first.OK || !second.OK {
		t.Fatalf("want success, got %+v / %+v", first, second)
	}
	if len(first.CandidateAccounts) != 2 {
		t.Fatalf("candidates = %d, want 2", len(first.CandidateAccounts))
	}
	for i := range first.CandidateAccounts {
		if first.CandidateAccounts[i].AccountID != second.CandidateAccounts[i].AccountID {
			t.Fatalf("repeated tests of one token must discover the same accounts")
		}
	}
	if first.CandidateAccounts[0].Kind == first.CandidateAccounts[1].Kind {
		t.Fatalf("want one live and one demo candidate")
	}
}

func TestSimulatedHonorsCancellation(t *testing.T) {
	t.Parallel()
	v := NewSimulated(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := v.TestConnection(ctx, "tok-12345678")
	if res.OK || res.Reason != model.ReasonUnreachable {
		t.Fatalf("got %+v, want unreachable failure", res)
	}
}

type hangingValidator struct{}

func (hangingValidator) TestConnection(ctx context.Context, _ string) model.ValidationResult {
	// ignores ctx on purpose: a misbehaving real implementation
	time.Sleep(time.Minute)
	return model.ValidationResult{OK: true}
}

func TestTimeboxedResolvesHungCalls(t *testing.T) {
	t.Parallel()
	v := NewTimeboxed(hangingValidator{}, 20*time.Millisecond)

	start := time.Now()
	res := v.TestConnection(context.Background(), "tok-12345678")
	if res.OK || res.Reason != model.ReasonUnreachable {
		t.Fatalf("got %+v, want unreachable failure", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timebox did not bound the call")
	}
}

func TestTimeboxedPassesThroughResults(t *testing.T) {
	t.Parallel()
	v := NewTimeboxed(NewSimulated(time.Millisecond), time.Second)

	res := v.TestConnection(context.Background(), "tok-12345678")
	if !res.OK {
		t.Fatalf("got %+v, want success", res)
	}
}
