package prompt

// Default prompt texts, in Spanish to match the documents they describe.
// Tenants can override any key at runtime via the prompt admin endpoint.

const classifierPrompt = `Analiza el siguiente texto de un documento fiscal argentino y determina su tipo exacto.

TIPOS POSIBLES:
- FACTURA_A: Factura tipo A (entre empresas/responsables inscriptos)
- FACTURA_B: Factura tipo B (a responsables inscriptos/monotributistas)
- FACTURA_C: Factura tipo C (a consumidores finales)
- NOTA_CREDITO: Nota de crédito (cualquier tipo)
- DESPACHO_ADUANA: Despacho de aduana / documentación aduanera
- COMPROBANTE_IMPORTACION: Comprobante de importación
- TICKET: Ticket fiscal / comprobante de consumidor final

INSTRUCCIONES DE CLASIFICACIÓN:
1. Busca la letra en el recuadro superior del documento: A, B o C.
2. FACTURA A: IVA DISCRIMINADO, tabla de IVA con alícuotas (21%, 10.5%, 27%),
   columnas "Neto", "IVA", "Total", destinatario "RESPONSABLE INSCRIPTO".
3. FACTURA B: IVA INCLUIDO (no discriminado), solo columna "Total".
   REGLA ABSOLUTA: si contiene "LEY 27743" es FACTURA_B (confianza 0.99).
4. FACTURA C: "CONSUMIDOR FINAL", sin CUIT del cliente, IVA nunca discriminado.
5. DESPACHO_ADUANA: "DESPACHO", "ADUANA", "FOB", "CIF", "Posición Arancelaria".
6. TICKET: "TICKET", "TIQUE", "CF", sin CUIT del cliente.

Asigna nivel de confianza (0.0 a 1.0):
- 0.95-1.0: letra visible + 3 o más indicadores
- 0.85-0.94: letra visible + 2 indicadores
- 0.75-0.84: solo indicadores (sin letra visible)
- 0.60-0.74: pocos indicadores
- <0.60: dudoso

Identifica subtipos si aplica: ["SERVICIOS"], ["PRODUCTOS"], ["IMPORTACION"]

Texto del documento:
{{DOCUMENT_TEXT}}

Responde ÚNICAMENTE con un objeto JSON válido en este formato exacto:
{
  "tipo": "FACTURA_A",
  "confianza": 0.95,
  "subtipos": ["SERVICIOS"]
}`

const universalExtractorPrompt = `Extrae los datos de este documento fiscal argentino en formato JSON.

CAMPOS A EXTRAER:
- fecha: fecha del comprobante (YYYY-MM-DD)
- importe: monto total (número sin símbolos)
- cuit: CUIT del emisor (XX-XXXXXXXX-X)
- numeroComprobante: número de comprobante
- cae: CAE si está disponible (14 dígitos)
- tipoComprobante: FACTURA A/B/C, NOTA DE CREDITO, TICKET, etc.
- razonSocial: nombre de la empresa que emite
- netoGravado: importe neto gravado
- exento: importe exento (si no aparece: TOTAL - GRAVADO - IMPUESTOS)
- impuestos: suma total de impuestos (IVA + percepciones + retenciones)
- cupon: número de cupón si es pago con tarjeta
- moneda: código de moneda (ARS si no se indica)

Texto del documento:
{{DOCUMENT_TEXT}}

IMPORTANTE:
- Devuelve JSON válido
- Si un campo no está presente, usa null
- Para importes usa números sin símbolos de moneda
- Sé preciso con los cálculos

Responde SOLO con JSON:`

const facturaAPrompt = `Eres un experto en facturas argentinas TIPO A (entre responsables inscriptos).

CONTEXTO DE FACTURA A:
- Discrimina IVA (21%, 10.5%, 27%)
- Puede tener percepciones IIBB y retenciones
- Tiene CAE obligatorio

CAMPOS A EXTRAER:
- fecha (YYYY-MM-DD)
- importe (total con IVA) - NÚMERO
- cuit (del emisor - primer CUIT que aparezca) - STRING
- numeroComprobante (formato XXXXX-XXXXXXXX) - STRING
- cae (14 dígitos - buscar "CAE" o "C.A.E.") - STRING
- tipoComprobante ("FACTURA A") - STRING
- razonSocial (empresa emisora) - STRING
- netoGravado (subtotal antes de IVA) - NÚMERO
- exento (si existe concepto exento) - NÚMERO
- impuestos (UN SOLO NÚMERO: suma de IVA + percepciones + retenciones)
- cupon (si es pago con tarjeta) - STRING
- moneda (ARS si no se indica)
- lineItems (array - EXTRAER TODOS los items de la tabla de detalle)
- impuestosDetalle (array con cada impuesto separado)

La CANTIDAD es la PRIMERA COLUMNA de cada fila de la tabla de items.
Ejemplo: "2.00 | un | Servicio de consultoría | 1000.00 | 2000.00"
→ cantidad = 2.00

ESTRUCTURA DE lineItems:
[{"descripcion": "...", "cantidad": 2.00, "precioUnitario": 1000.00, "subtotal": 2000.00}]

ESTRUCTURA DE impuestosDetalle:
[{"tipo": "IVA", "alicuota": 21.00, "importe": 2100.00},
 {"tipo": "PERCEPCION", "alicuota": null, "importe": 350.00}]

IMPORTANTE:
- Separa CADA impuesto (no sumes IVA 21% + IVA 10.5%)
- Si un campo no existe, usa null
- NO confundas CANTIDAD con precio unitario o subtotal

Texto de la factura:
{{DOCUMENT_TEXT}}

Responde SOLO con JSON válido:`

const facturaBPrompt = `Eres un experto en facturas argentinas TIPO B.

CONTEXTO DE FACTURA B:
- IVA INCLUIDO en los precios (no discriminado)
- Puede tener percepciones
- Tiene CAE obligatorio

CAMPOS A EXTRAER:
- fecha (YYYY-MM-DD)
- importe (total INCLUYE IVA)
- cuit (del emisor)
- numeroComprobante
- cae (14 dígitos)
- tipoComprobante ("FACTURA B")
- razonSocial
- netoGravado (calcular: total / 1.21 si aplica IVA 21%)
- exento (si existe)
- impuestos (IVA implícito + percepciones)
- cupon
- moneda (ARS si no se indica)
- lineItems (array - EXTRAER TODOS; los precios YA incluyen IVA)
- impuestosDetalle (puede estar vacío si IVA no discriminado)

La CANTIDAD es la PRIMERA COLUMNA de cada fila de la tabla de items.

IMPORTANTE PARA FACTURA B:
- Los precios YA INCLUYEN IVA
- El netoGravado se calcula dividiendo el total por 1.21 (o la alícuota correspondiente)

Texto de la factura:
{{DOCUMENT_TEXT}}

Responde SOLO con JSON válido:`

const facturaCPrompt = `Eres un experto en facturas argentinas TIPO C (consumidor final).

CONTEXTO DE FACTURA C:
- IVA INCLUIDO en precios (nunca discriminado)
- Generalmente no tiene percepciones/retenciones
- Puede no tener CAE en algunos casos antiguos

CAMPOS A EXTRAER:
- fecha (YYYY-MM-DD)
- importe (total con IVA incluido)
- cuit (del emisor)
- numeroComprobante
- cae (si existe)
- tipoComprobante ("FACTURA C")
- razonSocial
- netoGravado (0 o null - no aplica)
- exento (generalmente 0)
- impuestos (0 - IVA incluido no discriminado)
- cupon
- moneda (ARS si no se indica)
- lineItems (puede ser simple)
- impuestosDetalle (generalmente vacío)

Enfócate en fecha, importe, CUIT y número de comprobante.

Texto de la factura:
{{DOCUMENT_TEXT}}

Responde SOLO con JSON válido:`

const despachoAduanaPrompt = `Eres un experto en despachos de aduana argentinos.

CONTEXTO:
- Documentos de importación
- Incluyen aranceles, tasas, impuestos aduaneros
- Pueden tener múltiples posiciones arancelarias
- FOB, CIF, fletes, seguros

CAMPOS A EXTRAER:
- fecha (fecha del despacho)
- importe (valor total CIF o equivalente)
- cuit (del despachante o importador)
- numeroComprobante (número de despacho)
- tipoComprobante ("DESPACHO_ADUANA")
- razonSocial (despachante de aduana)
- netoGravado (valor FOB o neto)
- impuestos (aranceles + IVA + percepciones)
- moneda (código de moneda)
- lineItems (posiciones arancelarias como items)
- impuestosDetalle (desglose de aranceles, IVA, tasas)

Texto del despacho:
{{DOCUMENT_TEXT}}

Responde SOLO con JSON válido:`

// defaults returns the built-in prompt set keyed by prompt key.
func defaults() map[string]string {
	return map[string]string{
		KeyClassifier:     classifierPrompt,
		KeyUniversal:      universalExtractorPrompt,
		KeyFacturaA:       facturaAPrompt,
		KeyFacturaB:       facturaBPrompt,
		KeyFacturaC:       facturaCPrompt,
		KeyDespachoAduana: despachoAduanaPrompt,
	}
}
