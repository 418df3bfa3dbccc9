package models

import "time"

// ShippingRules описывает правила расчёта доставки
type ShippingRules struct {
	StandardRate          float64 `json:"standardRate"`
	FreeShippingThreshold float64 `json:"freeShippingThreshold"`
	FreeShippingMinItems  int     `json:"freeShippingMinItems"`
	ExpressRate           float64 `json:"expressRate"`
	IsFreeShippingEnabled bool    `json:"isFreeShippingEnabled"`
	BuyXGetFreeEnabled    bool    `json:"buyXGetFreeEnabled"`
	BuyXItems             int     `json:"buyXItems"`
	PromotionText         string  `json:"promotionText"`
}

// ShippingSettings представляет сохранённые правила доставки
type ShippingSettings struct {
	Shipping  ShippingRules `json:"shipping"`
	UpdatedAt *time.Time    `json:"updatedAt,omitempty"`
}
