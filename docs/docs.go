// Package docs registers the Swagger 2.0 document served under /swagger.
// The template mirrors the swag annotations on cmd/server and the handlers
// and must be updated alongside them.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/admin/settings/sms-validation": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Admin"
                ],
                "summary": "Flip the SMS validation switch (admin)",
                "operationId": "toggleSmsValidation",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.ToggleResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Not an admin",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/admin/users": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Admin"
                ],
                "summary": "List all users (admin)",
                "operationId": "listUsers",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.ListUsersResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Not an admin",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/admin/users/{id}/admin": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Admin"
                ],
                "summary": "Flip a user's admin flag (admin)",
                "operationId": "toggleAdmin",
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.ToggleResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Not an admin",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "User not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/listings/{kind}": {
            "get": {
                "description": "Live listings, newest first. q narrows by service name (case-insensitive).\nPoster name and phone are only shown to signed-in callers.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Listings"
                ],
                "summary": "Browse offers or requests",
                "operationId": "listListings",
                "parameters": [
                    {
                        "enum": [
                            "offers",
                            "requests"
                        ],
                        "type": "string",
                        "description": "offers or requests",
                        "name": "kind",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Service name filter",
                        "name": "q",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Max results (1-500, default 100)",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.ListingsResponse"
                        }
                    },
                    "404": {
                        "description": "Unknown kind",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Storage unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "The poster's display name and phone are copied onto the listing.\nRetrying with the same Idempotency-Key returns the original listing.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Listings"
                ],
                "summary": "Post an offer or request",
                "operationId": "postListing",
                "parameters": [
                    {
                        "enum": [
                            "offers",
                            "requests"
                        ],
                        "type": "string",
                        "description": "offers or requests",
                        "name": "kind",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Key for safe retries",
                        "name": "Idempotency-Key",
                        "in": "header"
                    },
                    {
                        "description": "Listing",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.PostListingRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/domain.Listing"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Unknown kind",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Write failed",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/listings/{kind}/stream": {
            "get": {
                "description": "Server-sent events. A \"listings\" event carrying the full filtered view is sent\non connect and after every change; comment lines keep idle connections open.",
                "produces": [
                    "text/event-stream"
                ],
                "tags": [
                    "Listings"
                ],
                "summary": "Watch offers or requests",
                "operationId": "streamListings",
                "parameters": [
                    {
                        "enum": [
                            "offers",
                            "requests"
                        ],
                        "type": "string",
                        "description": "offers or requests",
                        "name": "kind",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Service name filter",
                        "name": "q",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Max results per event (1-500, default 100)",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/domain.Listing"
                            }
                        }
                    },
                    "404": {
                        "description": "Unknown kind",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/listings/{kind}/{id}": {
            "delete": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "Listings"
                ],
                "summary": "Remove own listing",
                "operationId": "deleteListing",
                "parameters": [
                    {
                        "enum": [
                            "offers",
                            "requests"
                        ],
                        "type": "string",
                        "description": "offers or requests",
                        "name": "kind",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Listing ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Not the poster",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Listing not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/phone": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Allowed only while SMS validation is switched off.",
                "consumes": [
                    "application/json"
                ],
                "tags": [
                    "Phone"
                ],
                "summary": "Save phone without verification",
                "operationId": "savePhone",
                "parameters": [
                    {
                        "description": "Phone number",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.PhoneRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Phone saved"
                    },
                    "400": {
                        "description": "Invalid phone",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "SMS validation required",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/phone/verifications": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Sends a six-digit code by SMS. Fails with 409 while SMS validation is switched off.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Phone"
                ],
                "summary": "Start phone verification",
                "operationId": "requestPhoneCode",
                "parameters": [
                    {
                        "description": "Phone number",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.PhoneRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/domain.PhoneVerification"
                        }
                    },
                    "400": {
                        "description": "Invalid phone",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "SMS validation disabled",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "502": {
                        "description": "SMS gateway failure",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/phone/verifications/{id}/confirm": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Checks the code; on success the number is saved on the caller's profile.",
                "consumes": [
                    "application/json"
                ],
                "tags": [
                    "Phone"
                ],
                "summary": "Confirm phone verification",
                "operationId": "confirmPhoneCode",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Verification ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Code",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.ConfirmCodeRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Phone saved"
                    },
                    "400": {
                        "description": "Wrong, expired, or used code",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Another user's verification",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Verification not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/profiles/me": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Merge-writes display name and presentation video link. Phone and admin flag are untouched.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Profiles"
                ],
                "summary": "Edit own profile",
                "operationId": "updateMyProfile",
                "parameters": [
                    {
                        "description": "Profile fields",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.UpdateProfileRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Profile"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Write failed",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/profiles/{id}": {
            "get": {
                "description": "Returns a user's profile. The phone number is only included for signed-in callers.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Profiles"
                ],
                "summary": "Get a profile",
                "operationId": "getProfile",
                "parameters": [
                    {
                        "type": "string",
                        "description": "User ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Profile"
                        }
                    },
                    "404": {
                        "description": "Profile not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Storage unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/profiles/{id}/ratings": {
            "get": {
                "description": "Returns visible ratings in creation order with their average.\nSupports conditional requests via If-None-Match.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Ratings"
                ],
                "summary": "Ratings of a profile",
                "operationId": "listRatings",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Rated user ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "ETag from a previous response",
                        "name": "If-None-Match",
                        "in": "header"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.RatingSummary"
                        }
                    },
                    "304": {
                        "description": "Not modified"
                    },
                    "503": {
                        "description": "Storage unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Adds a 1-5 star rating with optional comment and media link.\nRetrying with the same Idempotency-Key returns the original rating.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Ratings"
                ],
                "summary": "Rate a profile",
                "operationId": "submitRating",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Rated user ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Key for safe retries",
                        "name": "Idempotency-Key",
                        "in": "header"
                    },
                    {
                        "description": "Rating",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.SubmitRatingRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/domain.Rating"
                        }
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Self-rating",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Write failed",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/profiles/{id}/ratings/{ratingId}": {
            "delete": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Soft-deletes a rating. Only its reviewer may do so.",
                "tags": [
                    "Ratings"
                ],
                "summary": "Remove own rating",
                "operationId": "deleteRating",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Rated user ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Rating ID",
                        "name": "ratingId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Not the reviewer",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Rating not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/profiles/{id}/ratings/{ratingId}/reply": {
            "put": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Writes the rated user's reply, replacing any previous one.",
                "consumes": [
                    "application/json"
                ],
                "tags": [
                    "Ratings"
                ],
                "summary": "Reply to a rating",
                "operationId": "setReply",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Rated user ID (must be the caller)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Rating ID",
                        "name": "ratingId",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Reply",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.ReplyRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Saved"
                    },
                    "400": {
                        "description": "Invalid input",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Not the profile owner",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Rating not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            },
            "delete": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "Ratings"
                ],
                "summary": "Remove reply from a rating",
                "operationId": "clearReply",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Rated user ID (must be the caller)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Rating ID",
                        "name": "ratingId",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Cleared"
                    },
                    "403": {
                        "description": "Not the profile owner",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Rating not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/settings": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Settings"
                ],
                "summary": "Read global settings",
                "operationId": "getSettings",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Settings"
                        }
                    },
                    "503": {
                        "description": "Storage unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "domain.Listing": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "kind": {
                    "type": "string",
                    "example": "offers"
                },
                "service": {
                    "type": "string",
                    "example": "Lawn mowing"
                },
                "date": {
                    "type": "string",
                    "example": "2025-07-01"
                },
                "time": {
                    "type": "string",
                    "example": "09:30"
                },
                "price": {
                    "type": "number",
                    "example": 20
                },
                "address": {
                    "type": "string",
                    "example": "12 Elm St"
                },
                "userId": {
                    "type": "string"
                },
                "userName": {
                    "type": "string"
                },
                "userPhone": {
                    "type": "string"
                },
                "createdAt": {
                    "type": "string"
                }
            }
        },
        "domain.PhoneVerification": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "phone": {
                    "type": "string",
                    "example": "+15551234567"
                },
                "expiresAt": {
                    "type": "string"
                }
            }
        },
        "domain.Profile": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "example": "u2"
                },
                "displayName": {
                    "type": "string",
                    "example": "Maya"
                },
                "phone": {
                    "type": "string",
                    "example": "+15551234567"
                },
                "videoUrl": {
                    "type": "string",
                    "example": "https://youtu.be/abc"
                },
                "admin": {
                    "type": "boolean"
                }
            }
        },
        "domain.Rating": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string",
                    "example": "01J9Z8Q4R2V7N6K3M1T0W5Y8XA"
                },
                "subjectId": {
                    "type": "string",
                    "example": "u2"
                },
                "reviewerId": {
                    "type": "string",
                    "example": "u1"
                },
                "reviewerLabel": {
                    "type": "string",
                    "example": "Sam"
                },
                "stars": {
                    "type": "integer",
                    "example": 5
                },
                "comment": {
                    "type": "string"
                },
                "mediaUrl": {
                    "type": "string"
                },
                "replyText": {
                    "type": "string"
                },
                "replyMediaUrl": {
                    "type": "string"
                },
                "createdAt": {
                    "type": "string"
                }
            }
        },
        "domain.RatingSummary": {
            "type": "object",
            "properties": {
                "subjectId": {
                    "type": "string"
                },
                "average": {
                    "type": "number",
                    "example": 4.5
                },
                "count": {
                    "type": "integer",
                    "example": 2
                },
                "ratings": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.Rating"
                    }
                }
            }
        },
        "domain.Settings": {
            "type": "object",
            "properties": {
                "smsValidation": {
                    "type": "boolean"
                }
            }
        },
        "handlers.ConfirmCodeRequest": {
            "type": "object",
            "required": [
                "code"
            ],
            "properties": {
                "code": {
                    "type": "string",
                    "example": "042917"
                }
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {
                    "description": "Correlates server logs and client errors",
                    "type": "string",
                    "example": "123e4567-e89b-12d3-a456-426614174000"
                },
                "code": {
                    "description": "Stable, machine-readable code (see errors.go constants)",
                    "type": "string",
                    "example": "not_found"
                },
                "message": {
                    "description": "Human-readable message (safe to show to users)",
                    "type": "string",
                    "example": "resource not found"
                }
            }
        },
        "handlers.ListUsersResponse": {
            "type": "object",
            "properties": {
                "users": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.Profile"
                    }
                }
            }
        },
        "handlers.ListingsResponse": {
            "type": "object",
            "properties": {
                "listings": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.Listing"
                    }
                }
            }
        },
        "handlers.PhoneRequest": {
            "type": "object",
            "required": [
                "phone"
            ],
            "properties": {
                "phone": {
                    "type": "string",
                    "example": "+15551234567"
                }
            }
        },
        "handlers.PostListingRequest": {
            "type": "object",
            "required": [
                "price"
            ],
            "properties": {
                "service": {
                    "type": "string",
                    "example": "Lawn mowing"
                },
                "date": {
                    "type": "string",
                    "example": "2025-07-01"
                },
                "time": {
                    "type": "string",
                    "example": "09:30"
                },
                "price": {
                    "type": "number",
                    "example": 20
                },
                "address": {
                    "type": "string",
                    "example": "12 Elm St"
                }
            }
        },
        "handlers.ReplyRequest": {
            "type": "object",
            "properties": {
                "text": {
                    "type": "string",
                    "example": "Thanks!"
                },
                "mediaUrl": {
                    "type": "string"
                }
            }
        },
        "handlers.SubmitRatingRequest": {
            "type": "object",
            "properties": {
                "stars": {
                    "type": "integer",
                    "example": 5
                },
                "comment": {
                    "type": "string",
                    "example": "Great job on the lawn"
                },
                "mediaUrl": {
                    "type": "string",
                    "example": "https://youtu.be/xyz"
                }
            }
        },
        "handlers.ToggleResponse": {
            "type": "object",
            "properties": {
                "value": {
                    "type": "boolean"
                }
            }
        },
        "handlers.UpdateProfileRequest": {
            "type": "object",
            "properties": {
                "displayName": {
                    "type": "string",
                    "example": "Maya"
                },
                "videoUrl": {
                    "type": "string",
                    "example": "https://youtu.be/abc"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "SummerJobs API",
	Description:      "Profiles, ratings, phone verification and the offers/requests marketplace.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
