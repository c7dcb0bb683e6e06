// Package docs holds the swagger document served at /v1/swagger.
// Regenerate with: swag init -g cmd/api/main.go
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
        "/health": {
            "get": {
                "tags": [
                    "ops"
                ],
                "summary": "Healthcheck",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/store/products": {
            "get": {
                "tags": [
                    "Store-Products"
                ],
                "summary": "List products",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/store/products/{productID}": {
            "get": {
                "tags": [
                    "Store-Products"
                ],
                "summary": "Get product",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "type": "integer",
                        "description": "ID",
                        "name": "productID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/store/cart": {
            "get": {
                "tags": [
                    "Store-Cart"
                ],
                "summary": "Get cart",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Store-Cart"
                ],
                "summary": "Clear cart",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "204": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/cart/items": {
            "post": {
                "tags": [
                    "Store-Cart"
                ],
                "summary": "Add item to cart",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error"
                    },
                    "404": {
                        "description": "error"
                    },
                    "409": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/cart/items/{productID}": {
            "put": {
                "tags": [
                    "Store-Cart"
                ],
                "summary": "Set cart line quantity",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error"
                    },
                    "404": {
                        "description": "error"
                    },
                    "409": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "type": "integer",
                        "description": "ID",
                        "name": "productID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/cart/claim": {
            "post": {
                "tags": [
                    "Store-Cart"
                ],
                "summary": "Claim anonymous cart",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "401": {
                        "description": "error"
                    }
                },
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/profile": {
            "get": {
                "tags": [
                    "Store-Profile"
                ],
                "summary": "Get checkout profile",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/profile/address": {
            "put": {
                "tags": [
                    "Store-Profile"
                ],
                "summary": "Save shipping address",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/profile/payment-method": {
            "put": {
                "tags": [
                    "Store-Profile"
                ],
                "summary": "Choose payment method",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/orders": {
            "post": {
                "tags": [
                    "Store-Orders"
                ],
                "summary": "Place order",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK"
                    },
                    "401": {
                        "description": "error"
                    },
                    "422": {
                        "description": "error"
                    }
                },
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            },
            "get": {
                "tags": [
                    "Store-Orders"
                ],
                "summary": "List my orders",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/orders/{orderID}": {
            "get": {
                "tags": [
                    "Store-Orders"
                ],
                "summary": "Get my order",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "type": "integer",
                        "description": "ID",
                        "name": "orderID",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/orders/{orderID}/payment": {
            "post": {
                "tags": [
                    "Store-Orders"
                ],
                "summary": "Start payment",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "error"
                    },
                    "409": {
                        "description": "error"
                    },
                    "502": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "type": "integer",
                        "description": "ID",
                        "name": "orderID",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/orders/{orderID}/payment/confirm": {
            "post": {
                "tags": [
                    "Store-Orders"
                ],
                "summary": "Confirm payment",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "402": {
                        "description": "error"
                    },
                    "409": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "type": "integer",
                        "description": "ID",
                        "name": "orderID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "security": [
                    {
                        "ApiKeyAuth": []
                    }
                ]
            }
        },
        "/store/payments/webhook/{provider}": {
            "post": {
                "tags": [
                    "Store-Payments"
                ],
                "summary": "Gateway callback",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error"
                    },
                    "401": {
                        "description": "error"
                    },
                    "502": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "name": "provider",
                        "in": "path",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ]
            }
        },
        "/admin/products": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Create product",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "201": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "error"
                    },
                    "401": {
                        "description": "error"
                    }
                }
            }
        },
        "/admin/products/{productID}/stock": {
            "put": {
                "tags": [
                    "Admin"
                ],
                "summary": "Restock product",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "type": "integer",
                        "description": "ID",
                        "name": "productID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ]
            }
        },
        "/admin/orders/{orderID}/deliver": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Mark order delivered",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "error"
                    },
                    "409": {
                        "description": "error"
                    }
                },
                "parameters": [
                    {
                        "type": "integer",
                        "description": "ID",
                        "name": "orderID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/admin/orders/{orderID}/payment-logs": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Payment audit log",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "integer",
                        "description": "ID",
                        "name": "orderID",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "Storefront API",
	Description:      "Cart, checkout and payment reconciliation API.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
