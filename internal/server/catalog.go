package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// The catalog endpoints are the external collaborators of the notification
// core: products, weather, currencies. Their internals stay minimal and
// in-memory; the core only needs them to exist.

type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Weather struct {
	City      string    `json:"city"`
	Temp      float64   `json:"temp"`
	Humidity  float64   `json:"humidity"`
	Timestamp time.Time `json:"timestamp"`
}

type Currency struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Rate       float64   `json:"rate"` // relative to USD
	LastUpdate time.Time `json:"lastUpdate"`
}

type Catalog struct {
	mu       sync.RWMutex
	products map[string]Product
	weather  map[string]Weather
	rates    map[string]Currency
}

func NewCatalog() *Catalog {
	now := time.Now().UTC()
	return &Catalog{
		products: make(map[string]Product),
		weather:  make(map[string]Weather),
		rates: map[string]Currency{
			"USD": {ID: "usd", Code: "USD", Rate: 1, LastUpdate: now},
			"EUR": {ID: "eur", Code: "EUR", Rate: 0.92, LastUpdate: now},
			"GBP": {ID: "gbp", Code: "GBP", Rate: 0.79, LastUpdate: now},
			"MAD": {ID: "mad", Code: "MAD", Rate: 9.95, LastUpdate: now},
			"JPY": {ID: "jpy", Code: "JPY", Rate: 148.6, LastUpdate: now},
		},
	}
}

// --- products ---

func (c *Catalog) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	c.mu.RUnlock()
	writeJSON(w, http.StatusOK, out)
}

func (c *Catalog) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	p.ID = uuid.NewString()
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
	writeJSON(w, http.StatusCreated, p)
}

func (c *Catalog) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var p Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	if _, ok := c.products[id]; !ok {
		c.mu.Unlock()
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	p.ID = id
	c.products[id] = p
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (c *Catalog) HandleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c.mu.Lock()
	_, ok := c.products[id]
	delete(c.products, id)
	c.mu.Unlock()
	if !ok {
		http.Error(w, "product not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- weather ---

func (c *Catalog) HandleWeather(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	c.mu.RLock()
	entry, ok := c.weather[city]
	c.mu.RUnlock()
	if !ok {
		entry = cannedWeather(city)
		c.mu.Lock()
		c.weather[city] = entry
		c.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, entry)
}

func (c *Catalog) HandleRefreshWeather(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	entry := cannedWeather(city)
	c.mu.Lock()
	c.weather[city] = entry
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, entry)
}

// cannedWeather derives stable pseudo-readings from the city name.
func cannedWeather(city string) Weather {
	var sum int
	for _, r := range city {
		sum += int(r)
	}
	return Weather{
		City:      city,
		Temp:      5 + float64(sum%25),
		Humidity:  40 + float64(sum%55),
		Timestamp: time.Now().UTC(),
	}
}

// --- currencies ---

func (c *Catalog) HandleListCurrencies(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	out := make([]Currency, 0, len(c.rates))
	for _, cur := range c.rates {
		out = append(out, cur)
	}
	c.mu.RUnlock()
	writeJSON(w, http.StatusOK, out)
}

type conversion struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Result float64 `json:"result"`
}

func (c *Catalog) HandleConvert(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	amount, err := strconv.ParseFloat(vars["amount"], 64)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}

	c.mu.RLock()
	from, okFrom := c.rates[vars["from"]]
	to, okTo := c.rates[vars["to"]]
	c.mu.RUnlock()
	if !okFrom || !okTo {
		http.Error(w, "unknown currency", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, conversion{
		From:   from.Code,
		To:     to.Code,
		Amount: amount,
		Result: amount / from.Rate * to.Rate,
	})
}
