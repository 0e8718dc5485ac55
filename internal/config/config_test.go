package config

import (
	"testing"

	"github.com/spf13/afero"
)

func TestLoad_MissingFileReturnsEmpty(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/state")
	entries, err := s.Load()
	if err != nil {
		t.Fatalf("Load() err = %v, want nil", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %v, want empty", entries)
	}
}

func TestAdd_PersistsAndIsIdempotent(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/state")
	if err := s.Add(Entry{Path: "/a", Model: "cpu:m"}); err != nil {
		t.Fatalf("Add() = %v, want nil", err)
	}
	if err := s.Add(Entry{Path: "/a", Model: "cpu:other"}); err != nil {
		t.Fatalf("second Add() = %v, want nil", err)
	}

	entries, err := s.Load()
	if err != nil {
		t.Fatalf("Load() err = %v, want nil", err)
	}
	if len(entries) != 1 || entries[0].Model != "cpu:m" {
		t.Fatalf("entries = %+v, want single /a cpu:m entry", entries)
	}
}

func TestRemove_RoundTrip(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/state")
	s.Add(Entry{Path: "/a", Model: "cpu:m"})
	s.Add(Entry{Path: "/b", Model: "cpu:m"})

	if err := s.Remove("/a"); err != nil {
		t.Fatalf("Remove() = %v, want nil", err)
	}

	entries, _ := s.Load()
	if len(entries) != 1 || entries[0].Path != "/b" {
		t.Fatalf("entries = %+v, want only /b", entries)
	}
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/state")
	s.Add(Entry{Path: "/a", Model: "cpu:m"})

	if err := s.Remove("/nope"); err != nil {
		t.Fatalf("Remove() = %v, want nil", err)
	}
	entries, _ := s.Load()
	if len(entries) != 1 {
		t.Fatalf("entries = %+v, want unchanged", entries)
	}
}
