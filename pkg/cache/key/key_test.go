/*
 * Copyright 2021 The Thumbcache Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package key

import "testing"

func TestDeriveDeterminism(t *testing.T) {
	d := Descriptor{SourcePath: "/images/cat.jpg", Category: "CAT", Variant: 1}
	k1 := Derive(d, 100, 100, 1600000000.5, "q2")
	k2 := Derive(d, 100, 100, 1600000000.5, "q2")
	if k1 != k2 {
		t.Errorf("expected identical keys, got %s and %s", k1, k2)
	}
	if len(k1) != 32 {
		t.Errorf("expected 32-char key, got %d chars", len(k1))
	}
}

func TestDeriveDiffers(t *testing.T) {
	d := Descriptor{SourcePath: "/images/cat.jpg", Category: "CAT", Variant: 1}
	base := Derive(d, 100, 100, 1600000000.5, "q2")

	tests := []struct {
		name string
		k    Key
	}{
		{"width", Derive(d, 101, 100, 1600000000.5, "q2")},
		{"height", Derive(d, 100, 101, 1600000000.5, "q2")},
		{"modTime", Derive(d, 100, 100, 1600000001.5, "q2")},
		{"qualityVersion", Derive(d, 100, 100, 1600000000.5, "q3")},
		{"sourcePath", Derive(Descriptor{SourcePath: "/images/dog.jpg", Category: "CAT", Variant: 1}, 100, 100, 1600000000.5, "q2")},
		{"variant", Derive(Descriptor{SourcePath: "/images/cat.jpg", Category: "CAT", Variant: 2}, 100, 100, 1600000000.5, "q2")},
	}
	for _, tc := range tests {
		if tc.k == base {
			t.Errorf("expected key to differ when %s changes", tc.name)
		}
	}
}

func TestDeriveFallbackCannotHit(t *testing.T) {
	d := Descriptor{SourcePath: "/images/cat.jpg"}
	k1 := DeriveFallback(d, 100, 100, "q2")
	k2 := DeriveFallback(d, 100, 100, "q2")
	if k1 == k2 {
		t.Error("expected fallback keys from successive calls to differ")
	}
}

func TestSignatureExcludesVersion(t *testing.T) {
	s1 := Signature("/images/cat.jpg", 100, 100)
	s2 := Signature("/images/cat.jpg", 100, 100)
	if s1 != s2 {
		t.Errorf("expected identical signatures, got %s and %s", s1, s2)
	}
	if s3 := Signature("/images/cat.jpg", 200, 100); s3 == s1 {
		t.Error("expected signature to differ when size changes")
	}
	if s4 := Signature("/images/dog.jpg", 100, 100); s4 == s1 {
		t.Error("expected signature to differ when source changes")
	}
}
