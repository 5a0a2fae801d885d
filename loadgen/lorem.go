// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import (
	"math"
	"math/rand"
	"strings"
)

var loremWords = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur",
	"adipiscing", "elit", "sed", "do", "eiusmod", "tempor",
	"incididunt", "ut", "labore", "et", "dolore", "magna", "aliqua",
	"enim", "ad", "minim", "veniam", "quis", "nostrud", "exercitation",
	"ullamco", "laboris", "nisi", "aliquip", "ex", "ea", "commodo",
	"consequat", "duis", "aute", "irure", "in", "reprehenderit",
	"voluptate", "velit", "esse", "cillum", "eu", "fugiat", "nulla",
	"pariatur", "excepteur", "sint", "occaecat", "cupidatat", "non",
	"proident", "sunt", "culpa", "qui", "officia", "deserunt",
	"mollit", "anim", "id", "est", "laborum",
}

// messageBody samples a chat message: word count drawn from a
// lognormal(1,1), words drawn uniformly from the lorem pool. The
// lognormal gives mostly short messages with an occasional long one,
// which matches real chat length distributions far better than a
// uniform draw.
func messageBody(rng *rand.Rand) string {
	count := int(math.Round(math.Exp(1 + rng.NormFloat64())))
	if count < 1 {
		count = 1
	}
	words := make([]string, count)
	for i := range words {
		words[i] = loremWords[rng.Intn(len(loremWords))]
	}
	return strings.Join(words, " ")
}
