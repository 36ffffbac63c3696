package repository_test

import "github.com/lib/pq"

func pqCode(code string) *pq.Error {
	return &pq.Error{Code: pq.ErrorCode(code), Message: "simulated"}
}

func pqCheck(constraint string) *pq.Error {
	return &pq.Error{Code: "23514", Constraint: constraint, Message: "check violated"}
}

func pqUnique(constraint string) *pq.Error {
	return &pq.Error{Code: "23505", Constraint: constraint, Message: "duplicate key"}
}
