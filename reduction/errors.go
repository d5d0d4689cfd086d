// Copyright 2024 The Talaria Authors
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

package reduction

import "github.com/pkg/errors"

var (
	errNoDeltaRecord          = errors.New("reduction: no delta record for child hash")
	errMissingReference       = errors.New("reduction: reference bytes not supplied for reconstruction")
	errReconstructionMismatch = errors.New("reduction: reconstructed bytes do not hash to the original canonical hash")
)
