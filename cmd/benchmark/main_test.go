package main

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   outcome
	}{
		{"approved", http.StatusOK, `{"message":"Deposit request approved successfully"}`, outcomeApproved},
		{"lost race", http.StatusBadRequest, `{"error":"already_processed","message":"request already processed"}`, outcomeAlreadyProcessed},
		{"validation", http.StatusBadRequest, `{"error":"validation_error","message":"Invalid action"}`, outcomeFailed},
		{"insufficient funds", http.StatusBadRequest, `{"error":"insufficient_funds","message":"insufficient funds"}`, outcomeFailed},
		{"unreadable body", http.StatusBadRequest, `oops`, outcomeFailed},
		{"unauthorized", http.StatusUnauthorized, `{"error":"unauthorized"}`, outcomeFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.status, strings.NewReader(tc.body)))
		})
	}
}
