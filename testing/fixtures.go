package testing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"time"

	"github.com/amirphl/kartu-tanda-boga/media"
	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestMembershipRecord stores a membership record with a random serial
func (tf *TestFixtures) CreateTestMembershipRecord(sessionID string) (*models.MembershipRecord, error) {
	values := ValidFormValues(time.Now())
	result := SampleSubmissionResult(values.Name)
	result.Serial = fmt.Sprintf("KTB%08d", rand.Intn(100000000))

	record := models.NewMembershipRecord(sessionID, values, result)
	record.IPAddress = utils.ToPtr("127.0.0.1")
	record.UserAgent = utils.ToPtr("fixture")

	if err := tf.DB.DB.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create test membership record: %w", err)
	}
	return record, nil
}

// TwoToneImage returns a w x h image, red on the left half and blue on the right.
func TwoToneImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetRGBA(x, y, color.RGBA{R: 0xff, A: 0xff})
			} else {
				img.SetRGBA(x, y, color.RGBA{B: 0xff, A: 0xff})
			}
		}
	}
	return img
}

// PNGBytes encodes img as PNG, panicking on failure.
func PNGBytes(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEGBytes encodes img as JPEG, panicking on failure.
func JPEGBytes(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// SamplePhoto is a small JPEG profile photo.
func SamplePhoto() *media.EncodedImage {
	photo, err := media.NewEncodedImage(JPEGBytes(TwoToneImage(64, 48)), "image/jpeg")
	if err != nil {
		panic(err)
	}
	return photo
}

// BirthdayForAge returns a birthday string for someone turning age on now's date.
func BirthdayForAge(now time.Time, age int) string {
	return now.AddDate(-age, 0, 0).Format("2006-01-02")
}

// ValidFormValues passes every Details rule and carries a photo.
func ValidFormValues(now time.Time) models.FormValues {
	return models.FormValues{
		Name:      "Siti Rahmawati",
		Phone:     "081234567890",
		Email:     "siti@example.com",
		Birthday:  BirthdayForAge(now, 25),
		PhotoFile: SamplePhoto(),
	}
}

// SampleCatalog returns n card designs with distinct art URLs.
func SampleCatalog(n int) []models.CardDesign {
	names := []string{"JAPANESE", "COLORFULL", "NATURAL", "MODERN", "CLASSIC"}
	cards := make([]models.CardDesign, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, models.CardDesign{
			ID:       i + 1,
			Name:     names[i%len(names)],
			ImageURL: fmt.Sprintf("https://cdn.example.com/cards/card-%d.png", i+1),
			Tier:     "basic",
		})
	}
	return cards
}

// SampleSubmissionResult is what the membership API returns for a new member.
func SampleSubmissionResult(name string) *models.SubmissionResult {
	return &models.SubmissionResult{
		Name:                name,
		ProfileImage:        "https://cdn.example.com/profiles/1.jpg",
		CardImage:           "https://cdn.example.com/cards/card-3.png",
		Serial:              "KTB00000001",
		Point:               100,
		TierTitle:           "Silver",
		IsEligibleForCoupon: true,
		Coupons:             []models.Coupon{{Name: "Welcome 10%", Image: "https://cdn.example.com/coupons/welcome.png"}},
	}
}
