package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/repository"
	testingutil "github.com/amirphl/kartu-tanda-boga/testing"
	"github.com/amirphl/kartu-tanda-boga/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipRecordRepository(t *testing.T) {
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("TEST_DB_HOST not set")
	}

	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewMembershipRecordRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		first, err := fixtures.CreateTestMembershipRecord("session-a")
		require.NoError(t, err)
		second, err := fixtures.CreateTestMembershipRecord("session-b")
		require.NoError(t, err)

		t.Run("ByID", func(t *testing.T) {
			record, err := repo.ByID(ctx, first.ID)
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, first.Serial, record.Serial)
			assert.NotEqual(t, uuid.Nil, record.UUID)
			assert.Equal(t, []string(first.Coupons), []string(record.Coupons))
		})

		t.Run("ByIDNotFound", func(t *testing.T) {
			record, err := repo.ByID(ctx, 9999)
			assert.NoError(t, err)
			assert.Nil(t, record)
		})

		t.Run("BySerial", func(t *testing.T) {
			record, err := repo.BySerial(ctx, second.Serial)
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, "session-b", record.SessionID)

			missing, err := repo.BySerial(ctx, "NOPE")
			assert.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("ByFilterNewestFirst", func(t *testing.T) {
			rows, err := repo.ByFilter(ctx, models.MembershipRecordFilter{}, "", 0, 0)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, second.ID, rows[0].ID)
		})

		t.Run("ByFilterDateRange", func(t *testing.T) {
			after := utils.UTCNow().Add(time.Hour)
			rows, err := repo.ByFilter(ctx, models.MembershipRecordFilter{CreatedAfter: &after}, "", 0, 0)
			require.NoError(t, err)
			assert.Empty(t, rows)
		})

		t.Run("CountAndExists", func(t *testing.T) {
			count, err := repo.Count(ctx, models.MembershipRecordFilter{})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			exists, err := repo.Exists(ctx, models.MembershipRecordFilter{Serial: &first.Serial})
			require.NoError(t, err)
			assert.True(t, exists)
		})

		t.Run("SaveBatch", func(t *testing.T) {
			values := testingutil.ValidFormValues(time.Now())
			batch := []*models.MembershipRecord{
				models.NewMembershipRecord("batch", values, testingutil.SampleSubmissionResult("One")),
				models.NewMembershipRecord("batch", values, testingutil.SampleSubmissionResult("Two")),
			}
			batch[0].Serial = "KTBBATCH1"
			batch[1].Serial = "KTBBATCH2"
			require.NoError(t, repo.SaveBatch(ctx, batch))

			count, err := repo.Count(ctx, models.MembershipRecordFilter{})
			require.NoError(t, err)
			assert.Equal(t, int64(4), count)
		})

		t.Run("WithTransaction", func(t *testing.T) {
			values := testingutil.ValidFormValues(time.Now())
			errAbort := errors.New("abort")

			tests := []struct {
				name    string
				serial  string
				fail    error
				persist bool
			}{
				{name: "commit", serial: "KTBTXCOMMIT", persist: true},
				{name: "rollback", serial: "KTBTXROLLBACK", fail: errAbort},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					record := models.NewMembershipRecord("tx", values, testingutil.SampleSubmissionResult("Tx"))
					record.Serial = tt.serial

					err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
						if err := repo.Save(txCtx, record); err != nil {
							return err
						}
						saved, err := repo.BySerial(txCtx, tt.serial)
						require.NoError(t, err)
						require.NotNil(t, saved)
						return tt.fail
					})
					if tt.fail != nil {
						assert.ErrorIs(t, err, tt.fail)
					} else {
						require.NoError(t, err)
					}

					found, err := repo.BySerial(ctx, tt.serial)
					require.NoError(t, err)
					assert.Equal(t, tt.persist, found != nil)
				})
			}
		})

		t.Run("ClearAllTables", func(t *testing.T) {
			require.NoError(t, testDB.ClearAllTables())

			count, err := repo.Count(ctx, models.MembershipRecordFilter{})
			require.NoError(t, err)
			assert.Zero(t, count)
		})

		return nil
	})
	require.NoError(t, err)
}
