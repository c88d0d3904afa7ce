package database

import (
	"database/sql"

	"PostPilotAPI/models"
	"PostPilotAPI/utils"
)

// SaveCredentials upserts one user+platform credential row. Tokens are
// encrypted at rest with AES-256-GCM before they touch the database.
func (d *Database) SaveCredentials(cred *models.PlatformCredentials) error {
	accessToken, err := utils.EncryptToken(cred.AccessToken)
	if err != nil {
		return err
	}
	refreshToken, err := utils.EncryptToken(cred.RefreshToken)
	if err != nil {
		return err
	}
	oauth1Token, err := utils.EncryptToken(cred.OAuth1Token)
	if err != nil {
		return err
	}
	secret, err := utils.EncryptToken(cred.Secret)
	if err != nil {
		return err
	}

	query := `INSERT INTO credentials (id, user_id, platform, access_token, refresh_token, oauth1_token, secret,
			  token_type, expires_at, platform_user_id, platform_page_id, business_id, organization_id, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			  ON CONFLICT (user_id, platform)
			  DO UPDATE SET access_token = $4, refresh_token = $5, oauth1_token = $6, secret = $7,
			                token_type = $8, expires_at = $9, platform_user_id = $10, platform_page_id = $11,
			                business_id = $12, organization_id = $13, updated_at = $15`

	_, err = d.DB.Exec(query, cred.ID, cred.UserID, cred.Platform,
		accessToken, refreshToken, oauth1Token, secret,
		cred.TokenType, cred.ExpiresAt, cred.PlatformUserID, cred.PlatformPageID,
		cred.BusinessID, cred.OrganizationID, cred.CreatedAt, cred.UpdatedAt)
	return err
}

func (d *Database) GetCredentials(userID string, platform models.Platform) (*models.PlatformCredentials, error) {
	cred := &models.PlatformCredentials{}
	var refreshToken, oauth1Token, secret, tokenType sql.NullString
	var platformUserID, platformPageID, businessID, organizationID sql.NullString

	query := `SELECT id, user_id, platform, access_token, refresh_token, oauth1_token, secret,
			  token_type, expires_at, platform_user_id, platform_page_id, business_id, organization_id,
			  created_at, updated_at
			  FROM credentials WHERE user_id = $1 AND platform = $2`

	err := d.DB.QueryRow(query, userID, platform).Scan(&cred.ID, &cred.UserID, &cred.Platform,
		&cred.AccessToken, &refreshToken, &oauth1Token, &secret,
		&tokenType, &cred.ExpiresAt, &platformUserID, &platformPageID, &businessID, &organizationID,
		&cred.CreatedAt, &cred.UpdatedAt)

	if err != nil {
		return nil, err
	}

	cred.TokenType = tokenType.String
	cred.PlatformUserID = platformUserID.String
	cred.PlatformPageID = platformPageID.String
	cred.BusinessID = businessID.String
	cred.OrganizationID = organizationID.String

	if cred.AccessToken, err = utils.DecryptToken(cred.AccessToken); err != nil {
		return nil, err
	}
	if cred.RefreshToken, err = utils.DecryptToken(refreshToken.String); err != nil {
		return nil, err
	}
	if cred.OAuth1Token, err = utils.DecryptToken(oauth1Token.String); err != nil {
		return nil, err
	}
	if cred.Secret, err = utils.DecryptToken(secret.String); err != nil {
		return nil, err
	}

	return cred, nil
}

func (d *Database) GetUserCredentials(userID string) ([]*models.PlatformCredentials, error) {
	query := `SELECT platform, expires_at, platform_user_id, platform_page_id, created_at, updated_at
			  FROM credentials WHERE user_id = $1`

	rows, err := d.DB.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := []*models.PlatformCredentials{}
	for rows.Next() {
		cred := &models.PlatformCredentials{UserID: userID}
		var platformUserID, platformPageID sql.NullString

		err := rows.Scan(&cred.Platform, &cred.ExpiresAt, &platformUserID, &platformPageID,
			&cred.CreatedAt, &cred.UpdatedAt)
		if err != nil {
			continue
		}

		cred.PlatformUserID = platformUserID.String
		cred.PlatformPageID = platformPageID.String
		creds = append(creds, cred)
	}

	return creds, nil
}

func (d *Database) DeleteCredentials(userID string, platform models.Platform) error {
	query := `DELETE FROM credentials WHERE user_id = $1 AND platform = $2`
	_, err := d.DB.Exec(query, userID, platform)
	return err
}

func (d *Database) SavePublishResult(postID string, result models.PublishResult) error {
	query := `INSERT INTO publish_results (post_id, platform, success, message, external_post_id)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := d.DB.Exec(query, postID, result.Platform, result.Success,
		result.Message, result.PostID)
	return err
}

func (d *Database) GetPublishResults(postID string) ([]models.PublishResult, error) {
	query := `SELECT platform, success, message, external_post_id
			  FROM publish_results WHERE post_id = $1 ORDER BY created_at`

	rows, err := d.DB.Query(query, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.PublishResult{}
	for rows.Next() {
		var result models.PublishResult
		var externalID sql.NullString
		if err := rows.Scan(&result.Platform, &result.Success, &result.Message, &externalID); err != nil {
			continue
		}
		result.PostID = externalID.String
		results = append(results, result)
	}

	return results, nil
}
