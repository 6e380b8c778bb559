package mssql_test

import (
	"errors"
	"testing"

	mssqldriver "github.com/denisenkom/go-mssqldb"
	"github.com/stretchr/testify/assert"

	"github.com/Shyp/jobqueue/storage/mssql"
	"github.com/Shyp/jobqueue/storageerr"
)

func TestClassifyUniqueViolation(t *testing.T) {
	err := mssql.Classify(mssqldriver.Error{Number: 2627, Message: "Violation of unique key constraint"})
	assert.Equal(t, storageerr.CodeUniqueViolation, err.Code)
}

func TestClassifyLockTimeout(t *testing.T) {
	err := mssql.Classify(mssqldriver.Error{Number: 1222, Message: "Lock request time out period exceeded"})
	assert.Equal(t, storageerr.CodeLockNotAvailable, err.Code)
}

func TestClassifyNonMSSQLError(t *testing.T) {
	assert.Nil(t, mssql.Classify(errors.New("not a mssql error")))
}
