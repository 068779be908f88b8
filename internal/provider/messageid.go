package provider

import (
	"fmt"
	"math/rand"
	"time"
)

const messageIDRandomBound = 10000

type messageIDGenerator struct {
	now      func() time.Time
	randIntn func(n int) int
}

func newMessageIDGenerator() messageIDGenerator {
	return messageIDGenerator{now: time.Now, randIntn: rand.Intn}
}

// next returns PREFIX_<unix-millis>_<0..9999>. Uniqueness is best-effort.
func (g messageIDGenerator) next(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, g.now().UnixMilli(), g.randIntn(messageIDRandomBound))
}
