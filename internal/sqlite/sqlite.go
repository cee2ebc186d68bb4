package sqlite

import (
	"database/sql"
	"fmt"
	"math/big"
	"regexp"

	goSqlite "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SumBigNumbers is a sqlite aggregate that sums string-encoded integer
// balances without losing precision. Holdings store raw token amounts as
// numeric strings, so plain SUM() would coerce them to floats.
type SumBigNumbers struct {
	total *big.Int
}

func NewSumBigNumbers() *SumBigNumbers {
	return &SumBigNumbers{total: big.NewInt(0)}
}

func (s *SumBigNumbers) Step(value any) {
	str, ok := value.(string)
	if !ok {
		return
	}
	bigValue, ok := new(big.Int).SetString(str, 10)
	if !ok {
		return
	}
	s.total.Add(s.total, bigValue)
}

func (s *SumBigNumbers) Done() (string, error) {
	return s.total.String(), nil
}

var hasRegisteredExtensions = false

const SqliteInMemoryPath = "file::memory:?cache=shared"

func NewInMemorySqlite(l *zap.Logger) gorm.Dialector {
	return NewSqlite(SqliteInMemoryPath, l)
}

func NewInMemorySqliteWithName(name string, l *zap.Logger) gorm.Dialector {
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	return NewSqlite(path, l)
}

func NewSqlite(path string, l *zap.Logger) gorm.Dialector {
	if !hasRegisteredExtensions {
		sql.Register("sqlite3_with_extensions", &goSqlite.SQLiteDriver{
			ConnectHook: func(conn *goSqlite.SQLiteConn) error {
				if err := conn.RegisterAggregator("sum_big", NewSumBigNumbers, true); err != nil {
					l.Sugar().Errorw("Failed to register aggregator sum_big", "error", err)
					return err
				}
				return nil
			},
		})
		hasRegisteredExtensions = true
	}

	return &sqlite.Dialector{
		DriverName: "sqlite3_with_extensions",
		DSN:        path,
	}
}

func NewGormSqliteFromSqlite(sqlite gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = normal;`,
	}

	for _, pragma := range pragmas {
		res := db.Exec(pragma)
		if res.Error != nil {
			return nil, res.Error
		}
	}

	return db, nil
}

func IsDuplicateKeyError(err error) bool {
	r := regexp.MustCompile(`UNIQUE constraint failed`)

	return r.MatchString(err.Error())
}
