package testing

// CatalogFixtures seeds the orders database with a small catalog:
//
//   - form 1 "Hanbok Wedding" offers categories 1 and 2 and has four
//     alteration baselines (repair 3 is not alterable, repair 4 has no
//     standard)
//   - form 2 "Suit" offers categories 3 and 2
//   - event 1 uses form 1, event 2 (finished) uses form 2, event 3 has no form
const CatalogFixtures = `
INSERT INTO authors (id, name) VALUES (1, 'Lee Jiwon'), (2, 'Park Minho');
INSERT INTO affiliations (id, name) VALUES (1, 'Seoul Main'), (2, 'Busan');

INSERT INTO forms (id, name) VALUES (1, 'Hanbok Wedding'), (2, 'Suit');
INSERT INTO form_repairs (id, form_id, information, unit, is_alterable, standards, index_number) VALUES
	(1, 1, 'Chest', 'cm', 1, 92.0, 1),
	(2, 1, 'Waist', 'cm', 1, 76.5, 2),
	(3, 1, 'Sleeve length', 'cm', 0, 58.0, 3),
	(4, 1, 'Skirt length', 'cm', 1, NULL, 4),
	(5, 2, 'Inseam', 'cm', 1, 80.0, 1);

INSERT INTO events (id, name, form_id, start_date, end_date, in_progress) VALUES
	(1, 'Spring Fair 2024', 1, '2024-03-01', '2024-03-10', 1),
	(2, 'Winter Show', 2, '2023-12-01', '2023-12-03', 0),
	(3, 'Pop-up', NULL, NULL, NULL, 1);

INSERT INTO categories (id, name, index_number) VALUES
	(1, 'Hanbok', 1), (2, 'Accessories', 2), (3, 'Suits', 3);
INSERT INTO form_categories (form_id, category_id) VALUES (1, 1), (1, 2), (2, 3), (2, 2);

INSERT INTO products (id, category_id, name, price) VALUES
	(1, 1, 'Bride Hanbok', 1200000),
	(2, 1, 'Groom Hanbok', 900000),
	(3, 2, 'Norigae', 150000),
	(4, 3, 'Tuxedo', 800000);
INSERT INTO attributes (id, value) VALUES (1, 'Red'), (2, 'Blue'), (3, 'S'), (4, 'M');
INSERT INTO product_attributes (product_id, attribute_id) VALUES (1, 1), (1, 2), (2, 2), (4, 3), (4, 4);
`
