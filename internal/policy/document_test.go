/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package policy

import "testing"

func TestRoundTrip(t *testing.T) {
	doc := Empty("test policy")
	doc.Permissions.Network = &NetworkPermissions{Allow: []NetworkRule{{Host: "example.com"}}}
	doc.Permissions.Storage = &StoragePermissions{Allow: []StorageRule{{URI: "fs:///tmp/work", Access: []string{"read", "write"}}}}

	data, err := doc.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !doc.Equivalent(parsed) {
		t.Fatalf("round trip not equivalent: %+v vs %+v", doc, parsed)
	}
}

func TestGrantRevokeSymmetry(t *testing.T) {
	base := Empty("")
	rule := Detail{"host": "example.com"}

	granted, err := Grant(base, KindNetwork, rule)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	revoked, err := Revoke(granted, KindNetwork, rule)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !revoked.Equivalent(base) {
		t.Fatalf("grant+revoke left residue: %+v", revoked)
	}
}

func TestGrantIdempotent(t *testing.T) {
	base := Empty("")
	rule := Detail{"host": "example.com"}

	once, err := Grant(base, KindNetwork, rule)
	if err != nil {
		t.Fatalf("grant once: %v", err)
	}
	twice, err := Grant(once, KindNetwork, rule)
	if err != nil {
		t.Fatalf("grant twice: %v", err)
	}
	if len(twice.Permissions.Network.Allow) != 1 {
		t.Fatalf("expected a single rule, got %d", len(twice.Permissions.Network.Allow))
	}
}

func TestRevokeAbsentIsNoop(t *testing.T) {
	base := Empty("")
	_, err := Revoke(base, KindNetwork, Detail{"host": "example.com"})
	if err != nil {
		t.Fatalf("revoke absent rule should not error: %v", err)
	}
}

func TestStorageGrantMergesAccessModes(t *testing.T) {
	base := Empty("")
	granted, err := Grant(base, KindStorage, Detail{"uri": "fs:///tmp/work", "access": []string{"read"}})
	if err != nil {
		t.Fatalf("grant read: %v", err)
	}
	granted, err = Grant(granted, KindStorage, Detail{"uri": "fs:///tmp/work", "access": []string{"write"}})
	if err != nil {
		t.Fatalf("grant write: %v", err)
	}
	if len(granted.Permissions.Storage.Allow) != 1 {
		t.Fatalf("expected one merged storage rule, got %d", len(granted.Permissions.Storage.Allow))
	}
	access := granted.Permissions.Storage.Allow[0].Access
	if len(access) != 2 {
		t.Fatalf("expected both access modes merged, got %v", access)
	}
}

func TestRevokeStorageByURIRemovesAllModes(t *testing.T) {
	base := Empty("")
	granted, err := Grant(base, KindStorage, Detail{"uri": "fs:///tmp/work", "access": []string{"read", "write"}})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	revoked := RevokeStorageByURI(granted, "fs:///tmp/work")
	if revoked.Permissions.Storage != nil {
		t.Fatalf("expected storage permissions cleared, got %+v", revoked.Permissions.Storage)
	}
}
