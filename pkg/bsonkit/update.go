package bsonkit

import (
	"strings"

	"go.llib.dev/testcase/clock"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Apply executes a mongodb-style update document against the given document,
// and returns the updated copy. The input document is left untouched.
//
// The update document must consist of update operators only,
// the same restriction the real updateOne/updateMany operations have.
func Apply(doc bson.M, update bson.M) (bson.M, error) {
	out := Clone(doc)
	for op, operand := range update {
		if !strings.HasPrefix(op, "$") {
			return nil, ErrInvalidUpdate.F("unexpected field %q", op)
		}
		fields, ok := asDoc(operand)
		if !ok {
			return nil, ErrInvalidOperand.F("%s expects a document operand", op)
		}
		for path, value := range fields {
			if err := applyOperator(out, op, path, value); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func applyOperator(doc bson.M, op, path string, value any) error {
	switch op {
	case "$set":
		setPath(doc, path, cloneValue(value))
	case "$unset":
		unsetPath(doc, path)
	case "$inc":
		return applyArithmetic(doc, op, path, value, func(a, b float64) float64 { return a + b })
	case "$mul":
		return applyArithmetic(doc, op, path, value, func(a, b float64) float64 { return a * b })
	case "$rename":
		target, ok := value.(string)
		if !ok {
			return ErrInvalidOperand.F("$rename expects a string target for %q", path)
		}
		if current, exists := getPath(doc, path); exists {
			unsetPath(doc, path)
			setPath(doc, target, current)
		}
	case "$currentDate":
		setPath(doc, path, clock.Now().UTC())
	default:
		return ErrInvalidUpdate.F("unsupported update operator %q", op)
	}
	return nil
}

func applyArithmetic(doc bson.M, op, path string, operand any, fn func(a, b float64) float64) error {
	b, ok := toFloat(operand)
	if !ok {
		return ErrInvalidOperand.F("%s expects a numeric operand for %q", op, path)
	}
	current, exists := getPath(doc, path)
	if !exists {
		if op == "$mul" {
			setPath(doc, path, zeroLike(operand))
			return nil
		}
		setPath(doc, path, operand)
		return nil
	}
	a, ok := toFloat(current)
	if !ok {
		return ErrInvalidOperand.F("%s target %q is not numeric", op, path)
	}
	result := fn(a, b)
	if isInteger(current) && isInteger(operand) {
		setPath(doc, path, int64(result))
	} else {
		setPath(doc, path, result)
	}
	return nil
}

func zeroLike(operand any) any {
	if isInteger(operand) {
		return int64(0)
	}
	return float64(0)
}
