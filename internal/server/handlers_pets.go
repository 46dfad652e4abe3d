package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

var validSpecies = map[string]bool{
	"Dog":   true,
	"Cat":   true,
	"Bird":  true,
	"Other": true,
}

type petPayload struct {
	Name      string  `json:"name"`
	Species   string  `json:"species"`
	Breed     *string `json:"breed"`
	Age       int     `json:"age"`
	AgeMonths *int    `json:"ageMonths"`
	Weight    float64 `json:"weight"`
	PhotoURL  *string `json:"photoUrl"`
}

type petResponse struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Species   string          `json:"species"`
	Breed     *string         `json:"breed"`
	Age       int             `json:"age"`
	AgeMonths int             `json:"ageMonths"`
	Weight    float64         `json:"weight"`
	PhotoURL  *string         `json:"photoUrl"`
	Gallery   []photoResponse `json:"gallery"`
}

type photoPayload struct {
	URL  string     `json:"url"`
	Date *time.Time `json:"date"`
}

type photoResponse struct {
	ID   int64     `json:"id"`
	URL  string    `json:"url"`
	Date time.Time `json:"date"`
}

func validatePetPayload(c *gin.Context, payload petPayload) bool {
	if strings.TrimSpace(payload.Name) == "" {
		writeError(c, http.StatusBadRequest, "name is required")
		return false
	}
	if !validSpecies[payload.Species] {
		writeError(c, http.StatusBadRequest, "species must be one of Dog, Cat, Bird, Other")
		return false
	}
	return true
}

func (a *App) listPets(c *gin.Context) {
	ctx := c.Request.Context()
	rows, err := a.db.Query(ctx,
		`SELECT id, name, species, breed, age, age_months, weight, photo_url
		 FROM pets
		 ORDER BY id DESC`)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list pets")
		return
	}
	defer rows.Close()

	pets := []petResponse{}
	ids := []int64{}
	for rows.Next() {
		var pet petResponse
		if err := rows.Scan(&pet.ID, &pet.Name, &pet.Species, &pet.Breed,
			&pet.Age, &pet.AgeMonths, &pet.Weight, &pet.PhotoURL); err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to read pet row")
			return
		}
		pet.Gallery = []photoResponse{}
		pets = append(pets, pet)
		ids = append(ids, pet.ID)
	}
	if err := rows.Err(); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to list pets")
		return
	}

	if len(ids) > 0 {
		byPet, err := a.loadGalleries(ctx, ids)
		if err != nil {
			writeError(c, http.StatusInternalServerError, "Failed to load pet photos")
			return
		}
		for i := range pets {
			if gallery, ok := byPet[pets[i].ID]; ok {
				pets[i].Gallery = gallery
			}
		}
	}

	c.JSON(http.StatusOK, pets)
}

func (a *App) getPet(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	pet, found, err := a.fetchPet(c.Request.Context(), petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to load pet")
		return
	}
	if !found {
		writeError(c, http.StatusNotFound, "Pet not found")
		return
	}
	c.JSON(http.StatusOK, pet)
}

func (a *App) createPet(c *gin.Context) {
	var payload petPayload
	if !mustJSON(c, &payload) {
		return
	}
	if !validatePetPayload(c, payload) {
		return
	}

	ageMonths := 0
	if payload.AgeMonths != nil {
		ageMonths = *payload.AgeMonths
	}

	ctx := c.Request.Context()
	var petID int64
	err := a.db.QueryRow(ctx,
		`INSERT INTO pets (name, species, breed, age, age_months, weight, photo_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		payload.Name, payload.Species, payload.Breed, payload.Age,
		ageMonths, payload.Weight, payload.PhotoURL).Scan(&petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to create pet")
		return
	}

	pet, found, err := a.fetchPet(ctx, petID)
	if err != nil || !found {
		writeError(c, http.StatusInternalServerError, "Failed to load pet")
		return
	}
	c.JSON(http.StatusCreated, pet)
}

func (a *App) updatePet(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	var payload petPayload
	if !mustJSON(c, &payload) {
		return
	}
	if !validatePetPayload(c, payload) {
		return
	}

	ageMonths := 0
	if payload.AgeMonths != nil {
		ageMonths = *payload.AgeMonths
	}

	ctx := c.Request.Context()
	tag, err := a.db.Exec(ctx,
		`UPDATE pets
		 SET name = $1, species = $2, breed = $3, age = $4, age_months = $5, weight = $6, photo_url = $7
		 WHERE id = $8`,
		payload.Name, payload.Species, payload.Breed, payload.Age,
		ageMonths, payload.Weight, payload.PhotoURL, petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to update pet")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, http.StatusNotFound, "Pet not found")
		return
	}

	pet, found, err := a.fetchPet(ctx, petID)
	if err != nil || !found {
		writeError(c, http.StatusInternalServerError, "Failed to load pet")
		return
	}
	c.JSON(http.StatusOK, pet)
}

func (a *App) addPhoto(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	var payload photoPayload
	if !mustJSON(c, &payload) {
		return
	}
	if strings.TrimSpace(payload.URL) == "" {
		writeError(c, http.StatusBadRequest, "url is required")
		return
	}

	ctx := c.Request.Context()
	if !a.requirePet(c, ctx, petID) {
		return
	}

	createdAt := time.Now().UTC()
	if payload.Date != nil {
		createdAt = *payload.Date
	}

	var photo photoResponse
	err := a.db.QueryRow(ctx,
		`INSERT INTO pet_photos (pet_id, url, created_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, url, created_at`,
		petID, payload.URL, createdAt).Scan(&photo.ID, &photo.URL, &photo.Date)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to add photo")
		return
	}
	c.JSON(http.StatusCreated, photo)
}

func (a *App) deletePhoto(c *gin.Context) {
	petID, ok := pathID(c, "pet_id")
	if !ok {
		return
	}
	photoID, ok := pathID(c, "photo_id")
	if !ok {
		return
	}

	tag, err := a.db.Exec(c.Request.Context(),
		`DELETE FROM pet_photos WHERE id = $1 AND pet_id = $2`, photoID, petID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to delete photo")
		return
	}
	if tag.RowsAffected() == 0 {
		writeError(c, http.StatusNotFound, "Photo not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *App) fetchPet(ctx context.Context, petID int64) (petResponse, bool, error) {
	var pet petResponse
	err := a.db.QueryRow(ctx,
		`SELECT id, name, species, breed, age, age_months, weight, photo_url
		 FROM pets
		 WHERE id = $1`, petID).
		Scan(&pet.ID, &pet.Name, &pet.Species, &pet.Breed,
			&pet.Age, &pet.AgeMonths, &pet.Weight, &pet.PhotoURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return petResponse{}, false, nil
	}
	if err != nil {
		return petResponse{}, false, err
	}

	byPet, err := a.loadGalleries(ctx, []int64{petID})
	if err != nil {
		return petResponse{}, false, err
	}
	pet.Gallery = []photoResponse{}
	if gallery, ok := byPet[petID]; ok {
		pet.Gallery = gallery
	}
	return pet, true, nil
}

// loadGalleries fetches photos for a batch of pets, newest first.
func (a *App) loadGalleries(ctx context.Context, petIDs []int64) (map[int64][]photoResponse, error) {
	rows, err := a.db.Query(ctx,
		`SELECT id, pet_id, url, created_at
		 FROM pet_photos
		 WHERE pet_id = ANY($1)
		 ORDER BY created_at DESC, id DESC`, petIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPet := map[int64][]photoResponse{}
	for rows.Next() {
		var (
			petID int64
			photo photoResponse
		)
		if err := rows.Scan(&photo.ID, &petID, &photo.URL, &photo.Date); err != nil {
			return nil, err
		}
		byPet[petID] = append(byPet[petID], photo)
	}
	return byPet, rows.Err()
}

// requirePet answers whether the pet exists, writing the 404 itself when it
// does not.
func (a *App) requirePet(c *gin.Context, ctx context.Context, petID int64) bool {
	var exists bool
	err := a.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pets WHERE id = $1)`, petID).Scan(&exists)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to look up pet")
		return false
	}
	if !exists {
		writeError(c, http.StatusNotFound, "Pet not found")
		return false
	}
	return true
}
