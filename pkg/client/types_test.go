package client

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

const svcA = `{"svc-a": {"repoName": "svc-a", "gitRef": "main",
	"gitRefs": [{"refName": "main", "creatorDate": "2024-01-01T00:00:00Z"}],
	"gitMessage": "fix bug",
	"processes": [{"name": "svc-a", "running": true, "createTime": 1704067200000}]}}`

func TestRepoDict_DecodeExample(t *testing.T) {
	var d RepoDict
	if err := json.Unmarshal([]byte(svcA), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	r, ok := d["svc-a"]
	if !ok {
		t.Fatalf("expected key svc-a, got %v", d)
	}
	want := Repo{
		RepoName:   "svc-a",
		GitRef:     "main",
		GitRefs:    []GitRef{{RefName: "main", CreatorDate: "2024-01-01T00:00:00Z"}},
		GitMessage: "fix bug",
		Processes:  []Process{{Name: "svc-a", Running: true, CreateTime: 1704067200000}},
	}
	if !reflect.DeepEqual(r, want) {
		t.Fatalf("unexpected repo: %+v", r)
	}
}

func TestRepo_RoundTrip(t *testing.T) {
	repos := []Repo{
		{
			RepoName:   "a",
			GitRef:     "v1",
			GitRefs:    []GitRef{{RefName: "v1", CreatorDate: "2024-01-01T00:00:00Z"}, {RefName: "v1", CreatorDate: "2024-02-01T00:00:00Z"}},
			GitMessage: "multi\nline",
			Processes:  []Process{{Name: "p", Running: false, CreateTime: 0}, {Name: "q", Running: true, CreateTime: 42}},
		},
		{RepoName: "empty", GitRef: "dangling", GitRefs: []GitRef{}, Processes: []Process{}},
	}
	for _, r := range repos {
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got Repo
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !reflect.DeepEqual(got, r) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, r)
		}
	}
}

func TestRepo_NilSlicesEncodeAsArrays(t *testing.T) {
	b, err := json.Marshal(Repo{RepoName: "x", GitRef: "main"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"gitRefs":[]`) || !strings.Contains(s, `"processes":[]`) {
		t.Fatalf("expected empty arrays, got %s", s)
	}
	for _, key := range []string{"repoName", "gitRef", "gitRefs", "gitMessage", "processes"} {
		if !strings.Contains(s, `"`+key+`"`) {
			t.Fatalf("missing key %s in %s", key, s)
		}
	}
}

func TestRepoDict_Empty(t *testing.T) {
	var nilDict RepoDict
	b, err := json.Marshal(nilDict)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "{}" {
		t.Fatalf("expected {}, got %s", b)
	}
	var d RepoDict
	if err := json.Unmarshal([]byte("{}"), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(d) != 0 {
		t.Fatalf("expected empty dict, got %v", d)
	}
}

func TestRepoDict_NestedInMap(t *testing.T) {
	d := RepoDict{"r": {RepoName: "r"}}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"processes":[]`) {
		t.Fatalf("nested repo should use Repo encoding: %s", b)
	}
}

func TestLogEntry_PairEncoding(t *testing.T) {
	b, err := json.Marshal([]LogEntry{{Created: 1.5, Message: "2024-01-01 00:00:00.000 - INFO - up"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `[[1.5,"2024-01-01 00:00:00.000 - INFO - up"]]` {
		t.Fatalf("unexpected encoding %s", b)
	}
	var got []LogEntry
	if err := json.Unmarshal([]byte(`[[1700000000.25,"b"],[1700000000,"a"]]`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []LogEntry{{Created: 1700000000.25, Message: "b"}, {Created: 1700000000, Message: "a"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
	for _, bad := range []string{`{"created":1,"message":"a"}`, `[1]`, `["x","a"]`} {
		var e LogEntry
		if err := json.Unmarshal([]byte(bad), &e); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}
