package db

import (
	"errors"
	"time"

	"egharbari/api/internal/utils"
	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a function that performs an action and returns an error if it fails.
// It is re-run from scratch on every attempt, so it must recompute anything that collided.
type Operation func() error

// IsDuplicateKeyError is a function that checks if an error is a duplicate key error.
type IsDuplicateKeyError func(err error) bool

// WithRetries executes an operation with a retry mechanism for duplicate key errors.
// It attempts the operation up to maxRetries+1 times. Any other error is returned immediately;
// after the last attempt the duplicate key error itself is returned.
func WithRetries(op Operation, maxRetries int, isDuplicateKey IsDuplicateKeyError) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		if attempt == maxRetries {
			break
		}

		if !isDuplicateKey(err) {
			return err
		}
		utils.Logger.Debugf("Duplicate key on attempt %d, retrying: %v", attempt+1, err)
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond) // Simple incremental backoff
	}
	return err
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	// Also check for BulkWriteException, which can contain duplicate key errors
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	// FindOneAndUpdate and friends surface command errors instead of write exceptions.
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return false
}
