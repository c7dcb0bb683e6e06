package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/products"

	"github.com/shopspring/decimal"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type setStockPayload struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}

func sniffMIME(file multipart.File) (string, error) {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read: %w", err)
	}
	mime := http.DetectContentType(buf[:n])

	// reset so later reads start from byte 0
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek reset: %w", err)
	}
	return mime, nil
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// AdminCreateProduct godoc
//
//	@Summary		Create product
//	@Description	Multipart form: name, price, stock and either an image file or an image_ref
//	@Tags			Admin
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			name		formData	string	true	"Name"
//	@Param			price		formData	string	true	"Unit price"
//	@Param			stock		formData	int		true	"Units in stock"
//	@Param			image_ref	formData	string	false	"Existing image reference"
//	@Param			image		formData	file	false	"Product image (jpeg, png, webp)"
//	@Success		201			{object}	productView
//	@Failure		400			{object}	error
//	@Failure		401			{object}	error
//	@Router			/admin/products [post]
func (app *application) adminCreateProductHandler(w http.ResponseWriter, r *http.Request) {
	const maxBytes = 3 * 1024 * 1024 // 3MB
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("failed to parse form: %w", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		app.badRequestResponse(w, r, fmt.Errorf("product name is required"))
		return
	}
	price, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("price")))
	if err != nil || !price.IsPositive() {
		app.badRequestResponse(w, r, fmt.Errorf("price must be a positive decimal"))
		return
	}
	stock, err := strconv.Atoi(strings.TrimSpace(r.FormValue("stock")))
	if err != nil || stock < 0 {
		app.badRequestResponse(w, r, fmt.Errorf("stock must be a non-negative integer"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	imageRef := strings.TrimSpace(r.FormValue("image_ref"))
	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()

		if app.uploader == nil {
			app.unprocessableResponse(w, r, errors.New("image uploads are not configured"))
			return
		}

		// sniff actual MIME from bytes (don't trust Content-Type header)
		mime, err := sniffMIME(file)
		if err != nil {
			app.badRequestResponse(w, r, fmt.Errorf("sniff mime: %w", err))
			return
		}
		if !allowedImageTypes[mime] {
			app.badRequestResponse(w, r, fmt.Errorf("invalid image type: %s", mime))
			return
		}

		publicID := fmt.Sprintf("%s_%d", slugify(name), time.Now().UnixNano())
		imageRef, err = app.uploader.Upload(ctx, file, publicID)
		if err != nil {
			app.internalServerError(w, r, fmt.Errorf("upload image: %w", err))
			return
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		app.badRequestResponse(w, r, err)
		return
	}

	p, err := app.store.Sales().Products.Create(ctx, &products.Product{
		Name:     name,
		Price:    price,
		Stock:    stock,
		ImageRef: imageRef,
	})
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("product created", "product_id", p.ID, "name", p.Name, "stock", p.Stock)
	app.jsonResponse(w, http.StatusCreated, app.productView(p))
}

// AdminSetStock godoc
//
//	@Summary	Restock product
//	@Tags		Admin
//	@Accept		json
//	@Produce	json
//	@Param		productID	path		int				true	"Product ID"
//	@Param		payload		body		setStockPayload	true	"Stock"
//	@Success	200			{object}	productView
//	@Failure	404			{object}	error
//	@Router		/admin/products/{productID}/stock [put]
func (app *application) adminSetStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	productID, err := parseIDParam(r, "productID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var in setStockPayload
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	sales := app.store.Sales()
	if err := sales.Products.SetStock(ctx, productID, *in.Stock); err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}
	p, err := sales.Products.GetByID(ctx, productID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.productView(p))
}

// AdminDeliverOrder godoc
//
//	@Summary		Mark order delivered
//	@Description	Only paid orders can be delivered; repeating the call keeps the first delivery time
//	@Tags			Admin
//	@Produce		json
//	@Param			orderID	path		int	true	"Order ID"
//	@Success		200		{object}	orderView
//	@Failure		404		{object}	error
//	@Failure		409		{object}	error	"Order not paid"
//	@Router			/admin/orders/{orderID}/deliver [post]
func (app *application) adminDeliverOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	o, err := app.engine.MarkDelivered(ctx, orderID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.orderView(o))
}

// AdminPaymentLogs godoc
//
//	@Summary	Payment audit log
//	@Tags		Admin
//	@Produce	json
//	@Param		orderID	path		int	true	"Order ID"
//	@Success	200		{array}		paymentsrepo.PaymentLog
//	@Router		/admin/orders/{orderID}/payment-logs [get]
func (app *application) adminPaymentLogsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	logs, err := app.store.Sales().PayLogs.ListForOrder(ctx, orderID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, logs)
}
