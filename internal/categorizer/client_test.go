package categorizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"conti/internal/core"
)

type fakeFinder struct {
	categories map[string]*core.Category
}

func (f *fakeFinder) FindCategoryByName(_ context.Context, _, name string) (*core.Category, error) {
	if c, ok := f.categories[name]; ok {
		return c, nil
	}
	return nil, core.ErrNotFound
}

func newCategorizeServer(t *testing.T, category string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/categorize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"category": category})
	}))
}

func TestPredictResolvesRegisteredCategory(t *testing.T) {
	srv := newCategorizeServer(t, "Groceries")
	defer srv.Close()

	finder := &fakeFinder{categories: map[string]*core.Category{
		"Groceries": {ID: "cat-1", Name: "Groceries", Kind: core.Expense},
	}}
	client := NewClient(srv.URL, time.Second, finder)

	prediction, err := client.Predict(context.Background(), "user-1", "weekly shop")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !prediction.Found || prediction.Category.ID != "cat-1" {
		t.Errorf("prediction = %+v, want cat-1", prediction)
	}
}

func TestPredictUnregisteredNameIsAMiss(t *testing.T) {
	srv := newCategorizeServer(t, "Yachts")
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, &fakeFinder{})

	prediction, err := client.Predict(context.Background(), "user-1", "boat stuff")
	if err != nil {
		t.Fatalf("a name with no stored category is a miss, not an error: %v", err)
	}
	if prediction.Found {
		t.Errorf("prediction = %+v, want miss", prediction)
	}
}

func TestPredictEmptyNameIsAMiss(t *testing.T) {
	srv := newCategorizeServer(t, "")
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, &fakeFinder{})

	prediction, err := client.Predict(context.Background(), "user-1", "???")
	if err != nil || prediction.Found {
		t.Errorf("got (%+v, %v), want clean miss", prediction, err)
	}
}

func TestPredictServiceDownReturnsError(t *testing.T) {
	srv := newCategorizeServer(t, "Groceries")
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, time.Second, &fakeFinder{})

	if _, err := client.Predict(context.Background(), "user-1", "weekly shop"); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestPredictNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, &fakeFinder{})

	if _, err := client.Predict(context.Background(), "user-1", "weekly shop"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestLearnSendsTrainingPair(t *testing.T) {
	var got trainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/train" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, &fakeFinder{})

	if err := client.Learn(context.Background(), "monthly rent", "Housing"); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if got.Description != "monthly rent" || got.Category != "Housing" {
		t.Errorf("trained with %+v", got)
	}
}

func TestLearnSkipsShortDescriptions(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, &fakeFinder{})

	if err := client.Learn(context.Background(), "  a ", "Housing"); err != nil {
		t.Fatalf("learn: %v", err)
	}
	if called {
		t.Error("descriptions under 3 characters must not be sent")
	}
}
