// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"strconv"

	"github.com/juju/errors"
)

var (
	// ErrMissingIdentity is returned for a record without user and session.
	ErrMissingIdentity = errors.NotValidf("record identity")
	// ErrUnknownIdentifier is returned when encoding an identifier absent from the training partition.
	ErrUnknownIdentifier = errors.NotFoundf("identifier")
)

// Record is a single interaction between a user (or an anonymous session) and an item.
// An empty string means the field is absent.
type Record struct {
	UserId    string  `json:"userId"`
	SessionId string  `json:"userSession"`
	ItemId    int64   `json:"contentId"`
	Rating    float32 `json:"rating"`
}

// EffectiveUser returns the user id, falling back to the session id.
func (r Record) EffectiveUser() (string, error) {
	if r.UserId != "" {
		return r.UserId, nil
	}
	if r.SessionId != "" {
		return r.SessionId, nil
	}
	return "", ErrMissingIdentity
}

// FormatItemId returns the raw identifier of an item.
func FormatItemId(itemId int64) string {
	return strconv.FormatInt(itemId, 10)
}
