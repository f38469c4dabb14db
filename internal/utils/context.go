package utils

import (
	"context"
)

type contextKey string

const ContextOperatorKey contextKey = "operator"

func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, ContextOperatorKey, operator)
}

func GetOperatorFromContext(ctx context.Context) (string, bool) {
	operator := ctx.Value(ContextOperatorKey)
	operatorStr, ok := operator.(string)
	return operatorStr, ok && operatorStr != ""
}
