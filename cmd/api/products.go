package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/params"

	"github.com/go-chi/chi/v5"
)

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// ListProducts godoc
//
//	@Summary		List products
//	@Description	Lists products with live price and stock
//	@Tags			Store-Products
//	@Produce		json
//	@Param			page	query		int	false	"Page number"
//	@Param			limit	query		int	false	"Items per page"
//	@Success		200		{object}	map[string]any
//	@Failure		500		{object}	error
//	@Router			/store/products [get]
func (app *application) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p := params.ParsePagination(r.URL.Query(), params.ProductListing)

	list, total, err := app.store.Sales().Products.List(ctx, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	views := make([]productView, 0, len(list))
	for _, prod := range list {
		views = append(views, app.productView(prod))
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"products":   views,
		"pagination": p,
	})
}

// GetProduct godoc
//
//	@Summary		Get product
//	@Tags			Store-Products
//	@Produce		json
//	@Param			productID	path		int	true	"Product ID"
//	@Success		200			{object}	productView
//	@Failure		404			{object}	error
//	@Router			/store/products/{productID} [get]
func (app *application) getProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := parseIDParam(r, "productID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	p, err := app.store.Sales().Products.GetByID(ctx, id)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.productView(p))
}
