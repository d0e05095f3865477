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


package core

import "errors"

// Domain validation errors
var (
	// ErrEmptySegmentId indicates a segment without an id.
	ErrEmptySegmentId = errors.New("segment id cannot be empty")

	// ErrEmptySegmentText indicates a segment without text content.
	ErrEmptySegmentText = errors.New("segment text cannot be empty")

	// ErrInvalidSegmentKind indicates an unrecognized SegmentKind value.
	ErrInvalidSegmentKind = errors.New("invalid segment kind")

	// ErrMissingPayloadArrays indicates a payload without all three
	// top-level arrays (entities, events, relations).
	ErrMissingPayloadArrays = errors.New("payload must carry entities, events and relations arrays")
)
