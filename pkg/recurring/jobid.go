package recurring

import (
	"context"
	"crypto/rand"
	"fmt"
)

const jobIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// generateJobID produces a globally-unique job_id by trying random
// lower-alphanumeric strings of increasing length: 10 attempts at 4 chars,
// then 10 at 5, and so on up to 12, mirroring the original service's
// _gen_job_id/_create_with_unique_job_id collision-widening loop.
func generateJobID(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	const attemptsPerLength = 10
	for length := 4; length <= 12; length++ {
		for attempt := 0; attempt < attemptsPerLength; attempt++ {
			candidate, err := randomJobID(length)
			if err != nil {
				return "", err
			}
			taken, err := exists(ctx, candidate)
			if err != nil {
				return "", err
			}
			if !taken {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("could not generate a unique job id after exhausting length 4..12")
}

func randomJobID(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = jobIDAlphabet[int(b)%len(jobIDAlphabet)]
	}
	return string(out), nil
}
