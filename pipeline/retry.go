// Copyright 2025 The wuzhou-kg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before retry attempt n+1, given that attempt n
// (1-based) just failed: base * 2^(n-1), capped at max, with half the value
// jittered so concurrent retries spread out instead of stampeding the service
// in lockstep. A non-zero hint from the service (Retry-After) takes precedence
// when it is longer than the computed delay.
func Backoff(attempt int, base, max, hint time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}

	// Half fixed, half jittered.
	delay = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))

	if hint > delay {
		return hint
	}
	return delay
}
